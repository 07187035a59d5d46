package host

import "fmt"

// NoOp is the safe default Host (spec §4.4): it errors on every call,
// so a module wired without an explicit host cannot silently reach a
// real model or tool backend.
type NoOp struct{}

func (NoOp) Exec(req ExecRequest) (string, error) {
	return "", fmt.Errorf("no host configured: exec(model=%q) not available", req.Model)
}

func (NoOp) ToolCall(req ToolCallRequest) (any, error) {
	return nil, fmt.Errorf("no host configured: tool %q not available", req.ToolName)
}
