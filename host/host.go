// Package host defines the sole boundary between the VM and the outside
// world (spec §4.4): sending a prompt to a model and invoking a named
// tool. Every LLM call and every tool invocation in a running module
// passes through a Host; the VM itself never touches a network socket,
// clock or filesystem.
//
// Grounded in the oracle-hook boundary in
// _examples/daios-ai-msg/oracles.go (execOracle delegates entirely to a
// pluggable `__oracle_execute` hook rather than calling a model
// directly) generalized to a proper Go interface, plus
// github.com/google/uuid for request tracing, adopted from the wider
// example pack for exactly this purpose (SPEC_FULL.md §2).
package host

import "github.com/google/uuid"

// ExecRequest packages an LLM prompt (spec §4.4).
type ExecRequest struct {
	ID           uuid.UUID
	AgentID      uint64
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// ToolCallRequest packages a tool invocation (spec §4.4).
type ToolCallRequest struct {
	ID        uuid.UUID
	AgentID   uint64
	ToolName  string
	NamedArgs map[string]any
}

// Host is the VM's only channel to the outside world (spec §4.4).
// Implementations must not block indefinitely: the scheduler treats
// Exec and ToolCall as suspension points and expects them to eventually
// resolve, but Recv/RecvTimeout ordering guarantees (§5) depend on a
// Host serializing calls issued by the same agent in issue order.
type Host interface {
	// Exec sends request to the configured model and returns its reply
	// text, or an error that becomes a HostError value on the calling
	// agent.
	Exec(request ExecRequest) (string, error)

	// ToolCall invokes the named tool with the given arguments and
	// returns its result value (as a JSON-compatible Go value, decoded
	// by the caller via value.ParseJSON-shaped conversion) or an error.
	ToolCall(request ToolCallRequest) (any, error)
}

// NewRequestID mints a request ID for tracing, grounded in the pack's use
// of google/uuid for correlating an outbound call with its eventual
// response.
func NewRequestID() uuid.UUID { return uuid.New() }
