package vm

import "github.com/agentusdev/agentus/internal/value"

// handlerEntry is one exception-handler stack entry (spec §3): the PC of
// the catch block and the register the caught error is bound into. A
// frame's register bank is fixed-size for the function's whole lifetime
// (allocated to its declared NumRegs), so unwinding needs no separate
// high-water-mark restore the way a growable register stack would.
type handlerEntry struct {
	handlerPC int
	errReg    uint8
}

// CallFrame is a per-call register bank plus program counter, handler
// stack and return info (spec §3). Grounded in the teacher's internal
// call-stack entry (litecode/vm/vm.go's frame push on Call/return), cut
// down to the fields Agentus's flatter call model needs.
type CallFrame struct {
	FnIndex    int
	PC         int
	Regs       []value.Value
	ResultReg  uint8 // register in the caller to receive the return value
	BoundAgent value.AgentHandle
	Handlers   []handlerEntry
}

func newFrame(fnIndex int, numRegs int, resultReg uint8, bound value.AgentHandle) *CallFrame {
	regs := make([]value.Value, numRegs)
	for i := range regs {
		regs[i] = value.None
	}
	return &CallFrame{
		FnIndex:    fnIndex,
		Regs:       regs,
		ResultReg:  resultReg,
		BoundAgent: bound,
	}
}

func (f *CallFrame) reg(i uint8) value.Value { return f.Regs[i] }

func (f *CallFrame) setReg(i uint8, v value.Value) { f.Regs[i] = v }

// pushHandler records a try-begin entry (spec §4.2).
func (f *CallFrame) pushHandler(handlerPC int, errReg uint8) {
	f.Handlers = append(f.Handlers, handlerEntry{handlerPC: handlerPC, errReg: errReg})
}

// popHandler removes the innermost handler entry (TryEnd, spec §4.2).
func (f *CallFrame) popHandler() {
	f.Handlers = f.Handlers[:len(f.Handlers)-1]
}
