package vm

import "github.com/agentusdev/agentus/internal/value"

// Status is an AgentInstance's execution state (spec §3).
type Status uint8

const (
	StatusReady Status = iota
	StatusRunning
	StatusSuspended
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SuspendReason distinguishes why a Suspended agent is parked (spec §3:
// "Suspended(on: mailbox|host_pending)"). WaitTarget carries the handle a
// suspendWait agent is blocked on.
type SuspendReason uint8

const (
	suspendNone SuspendReason = iota
	suspendMailbox
	suspendWait
	suspendHostPending
)

// hostPending captures a suspended Exec/TCall request awaiting resolution
// (spec §3: "Suspended(on: ... host_pending)", §4.3, §4.5). call performs
// the actual host round trip; the scheduler invokes it once, from
// VM.resolveHostPendingOne, never at the moment the agent suspends — so
// every other already-ready agent gets to run first, and a `kill` that
// lands before resolution simply drops this struct unrun.
type hostPending struct {
	call      func() (value.Value, *value.ErrorValue)
	resultReg uint8
	resumePC  int
}

// AgentInstance is one live agent (spec §3). Grounded in the teacher's
// Coroutine, but realized per spec §9's design note as an explicit
// CallFrame stack the scheduler drives directly rather than a native
// goroutine: "resumption restores by switching which stack the scheduler
// drives. No stack copying is required."
type AgentInstance struct {
	Handle     value.AgentHandle
	Descriptor int // index into Module.Agents, -1 for the root pseudo-agent
	Memory     map[string]value.Value

	Mailbox []value.Value

	Frames []*CallFrame
	Status Status

	SuspendOn      SuspendReason
	WaitTarget     value.AgentHandle
	RecvDst        uint8 // register a suspended Recv/RecvTimeout will write into on wake
	RecvCanTimeout bool  // true if the pending suspension is a RecvTimeout, eligible for the scheduler's timeout fallback
	Pending        *hostPending // set while SuspendOn == suspendHostPending

	ExitValue value.Value
	ExitErr   *value.ErrorValue

	Waiters []value.AgentHandle // agents parked in Wait on this one

	lastError *value.ErrorValue // most recently caught error, read by GetError (spec §4.2 retry lowering)
}

func newAgentInstance(handle value.AgentHandle, descriptor int) *AgentInstance {
	return &AgentInstance{
		Handle:     handle,
		Descriptor: descriptor,
		Memory:     make(map[string]value.Value),
		Status:     StatusReady,
		ExitValue:  value.None,
	}
}

func (a *AgentInstance) pushMail(v value.Value) {
	a.Mailbox = append(a.Mailbox, v)
}

// popMail removes and returns the oldest mailbox entry (spec §3: FIFO).
func (a *AgentInstance) popMail() (value.Value, bool) {
	if len(a.Mailbox) == 0 {
		return value.None, false
	}
	v := a.Mailbox[0]
	a.Mailbox = a.Mailbox[1:]
	return v, true
}

func (a *AgentInstance) currentFrame() *CallFrame {
	return a.Frames[len(a.Frames)-1]
}
