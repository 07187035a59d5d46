package host

import (
	"fmt"
	"sort"
	"strings"
)

// Echo is a deterministic reference Host (spec §4.4): Exec returns the
// user prompt verbatim, ToolCall formats the call as
// "name(arg1=v1, arg2=v2, ...)" with arguments in sorted key order so two
// runs of the same module produce identical emit traces (spec §8,
// "Determinism under an identical host").
type Echo struct{}

func (Echo) Exec(req ExecRequest) (string, error) {
	return req.UserPrompt, nil
}

func (Echo) ToolCall(req ToolCallRequest) (any, error) {
	keys := make([]string, 0, len(req.NamedArgs))
	for k := range req.NamedArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, req.NamedArgs[k])
	}
	return fmt.Sprintf("%s(%s)", req.ToolName, strings.Join(parts, ", ")), nil
}
