package codegen

import (
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/vmerr"
)

// hardMaxRegs is the encoding ceiling (spec §4.1): a register index is
// packed into one byte of an ABC-format instruction, so no configured cap
// may exceed it.
const hardMaxRegs = 256

// funcGen compiles one function, method, or the top-level entry body into
// a bytecode.Function. It owns a linear register allocator that hands out
// registers stack-like, starting at 0 (spec §4.2): a local's register is
// released only when its declaring scope closes, in reverse allocation
// order.
type funcGen struct {
	gen  *Generator
	name string

	agent      *AgentDecl     // non-nil when compiling a method body
	fieldIndex map[string]int // memory field name -> AgentDescriptor.Memory index

	code   []bytecode.Instruction
	spans  []bytecode.Span
	curPos Pos

	nextReg int
	maxReg  int
	regCap  int
	scopes  []map[string]uint8
}

func newFuncGen(gen *Generator, name string, agent *AgentDecl) *funcGen {
	fg := &funcGen{gen: gen, name: name, agent: agent, regCap: gen.maxRegs}
	if agent != nil {
		fg.fieldIndex = make(map[string]int, len(agent.Memory))
		for i, f := range agent.Memory {
			fg.fieldIndex[f.Name] = i
		}
	}
	return fg
}

func (fg *funcGen) pc() int { return len(fg.code) }

func (fg *funcGen) pushScope() { fg.scopes = append(fg.scopes, map[string]uint8{}) }

func (fg *funcGen) popScope() {
	top := fg.scopes[len(fg.scopes)-1]
	fg.nextReg -= len(top)
	fg.scopes = fg.scopes[:len(fg.scopes)-1]
}

// allocTemp reserves the next free register. Callers must release it (via
// release or popScope) in the reverse order they allocated, matching the
// stack discipline spec §4.2 requires.
func (fg *funcGen) allocTemp() (uint8, error) {
	if fg.nextReg >= fg.regCap {
		return 0, vmerr.TooManyRegisters(fg.name)
	}
	r := uint8(fg.nextReg)
	fg.nextReg++
	if fg.nextReg > fg.maxReg {
		fg.maxReg = fg.nextReg
	}
	return r, nil
}

// release frees the n most recently allocated temporaries.
func (fg *funcGen) release(n int) { fg.nextReg -= n }

// declareLocal allocates a register for a new named local in the current
// scope.
func (fg *funcGen) declareLocal(name string) (uint8, error) {
	r, err := fg.allocTemp()
	if err != nil {
		return 0, err
	}
	fg.scopes[len(fg.scopes)-1][name] = r
	return r, nil
}

// bindExisting associates name with an already-allocated register (used for
// the try/catch error binding, which reserves its register before the
// scope that names it is pushed).
func (fg *funcGen) bindExisting(name string, reg uint8) {
	fg.scopes[len(fg.scopes)-1][name] = reg
}

func (fg *funcGen) resolveLocal(name string) (uint8, bool) {
	for i := len(fg.scopes) - 1; i >= 0; i-- {
		if r, ok := fg.scopes[i][name]; ok {
			return r, true
		}
	}
	return 0, false
}

func (fg *funcGen) emit(op bytecode.Opcode, a, b, c uint8) int {
	fg.code = append(fg.code, bytecode.Instruction{Op: op, A: a, B: b, C: c})
	fg.spans = append(fg.spans, bytecode.Span{Line: fg.curPos.Line, Col: fg.curPos.Col})
	return fg.pc() - 1
}

func (fg *funcGen) emitABx(op bytecode.Opcode, a uint8, bx uint16) int {
	fg.code = append(fg.code, bytecode.Instruction{Op: op, A: a, Bx: bx})
	fg.spans = append(fg.spans, bytecode.Span{Line: fg.curPos.Line, Col: fg.curPos.Col})
	return fg.pc() - 1
}

// emitAsBx emits a placeholder-offset instruction, patched later via
// patchAsBx once its jump target is known.
func (fg *funcGen) emitAsBx(op bytecode.Opcode, a uint8) int {
	fg.code = append(fg.code, bytecode.Instruction{Op: op, A: a})
	fg.spans = append(fg.spans, bytecode.Span{Line: fg.curPos.Line, Col: fg.curPos.Col})
	return fg.pc() - 1
}

// emitSBx emits a placeholder unconditional jump, patched via patchSBx.
func (fg *funcGen) emitSBx(op bytecode.Opcode) int {
	fg.code = append(fg.code, bytecode.Instruction{Op: op})
	fg.spans = append(fg.spans, bytecode.Span{Line: fg.curPos.Line, Col: fg.curPos.Col})
	return fg.pc() - 1
}

func (fg *funcGen) emitNop(i bytecode.Instruction) int {
	fg.code = append(fg.code, i)
	fg.spans = append(fg.spans, bytecode.Span{Line: fg.curPos.Line, Col: fg.curPos.Col})
	return fg.pc() - 1
}

// patchAsBx sets pc's jump displacement so it lands on target, per spec
// §4.1: "signed word displacement applied to the PC after the branch
// instruction has been fetched".
func (fg *funcGen) patchAsBx(pc, target int) error {
	off := target - (pc + 1)
	if off < -32768 || off > 32767 {
		return vmerr.JumpOverflow(off)
	}
	fg.code[pc].SBx = int32(off)
	return nil
}

func (fg *funcGen) patchSBx(pc, target int) error {
	off := target - (pc + 1)
	if off < -(1<<23) || off >= (1<<23) {
		return vmerr.JumpOverflow(off)
	}
	fg.code[pc].SBx = int32(off)
	return nil
}

func (fg *funcGen) finish(numParams int) bytecode.Function {
	return bytecode.Function{
		Name:       fg.name,
		NumParams:  numParams,
		NumRegs:    fg.maxReg,
		Code:       fg.code,
		DebugSpans: fg.spans,
	}
}
