package vm

import (
	"fmt"

	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/value"
)

// step executes exactly one instruction (or one instruction group, for
// the multi-word Call/TCall/IterNext sequences) of a's current frame,
// unwinding into a handler on a thrown error. It returns true if a must
// suspend before its next instruction can run.
func (m *VM) step(a *AgentInstance) bool {
	f := a.currentFrame()
	fn := &m.Module.Functions[f.FnIndex]
	inst := fn.Code[f.PC]

	var thrown *value.ErrorValue
	suspend := false

	switch inst.Op {
	case bytecode.OpNop:
		f.PC++

	case bytecode.OpLoadNone:
		f.setReg(inst.A, value.None)
		f.PC++
	case bytecode.OpLoadBool:
		f.setReg(inst.A, value.Bool(inst.B != 0))
		f.PC++
	case bytecode.OpLoadConst:
		f.setReg(inst.A, constToValue(m.Module.Constants[inst.Bx]))
		f.PC++
	case bytecode.OpMove:
		f.setReg(inst.A, f.reg(inst.B))
		f.PC++

	case bytecode.OpAdd:
		var v value.Value
		v, thrown = value.Add(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpSub:
		var v value.Value
		v, thrown = value.Sub(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpMul:
		var v value.Value
		v, thrown = value.Mul(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpDiv:
		var v value.Value
		v, thrown = value.Div(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpMod:
		var v value.Value
		v, thrown = value.Mod(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpNeg:
		var v value.Value
		v, thrown = value.Neg(f.reg(inst.B))
		f.setReg(inst.A, v)
		f.PC++

	case bytecode.OpEq:
		f.setReg(inst.A, value.Bool(value.Equal(f.reg(inst.B), f.reg(inst.C))))
		f.PC++
	case bytecode.OpNe:
		f.setReg(inst.A, value.Bool(!value.Equal(f.reg(inst.B), f.reg(inst.C))))
		f.PC++
	case bytecode.OpLt:
		var b bool
		b, thrown = value.Compare("<", f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, value.Bool(b))
		f.PC++
	case bytecode.OpLe:
		var b bool
		b, thrown = value.Compare("<=", f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, value.Bool(b))
		f.PC++
	case bytecode.OpGt:
		var b bool
		b, thrown = value.Compare(">", f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, value.Bool(b))
		f.PC++
	case bytecode.OpGe:
		var b bool
		b, thrown = value.Compare(">=", f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, value.Bool(b))
		f.PC++

	case bytecode.OpAnd:
		f.setReg(inst.A, value.Bool(f.reg(inst.B).Truthy() && f.reg(inst.C).Truthy()))
		f.PC++
	case bytecode.OpOr:
		f.setReg(inst.A, value.Bool(f.reg(inst.B).Truthy() || f.reg(inst.C).Truthy()))
		f.PC++
	case bytecode.OpNot:
		f.setReg(inst.A, value.Not(f.reg(inst.B)))
		f.PC++

	case bytecode.OpConcat:
		var v value.Value
		v, thrown = value.Concat(f.reg(inst.B), f.reg(inst.C))
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpToStr:
		f.setReg(inst.A, value.Str(value.ToDisplayString(f.reg(inst.B))))
		f.PC++

	case bytecode.OpNewList:
		f.setReg(inst.A, value.ListVal(value.NewList()))
		f.PC++
	case bytecode.OpNewMap:
		f.setReg(inst.A, value.MapVal(value.NewMap()))
		f.PC++
	case bytecode.OpListPush:
		if l, ok := f.reg(inst.A).AsList(); ok {
			l.Push(f.reg(inst.B))
		} else {
			thrown = value.NewError(value.ErrType, "push target is not a list")
		}
		f.PC++
	case bytecode.OpIdxGet:
		thrown = m.idxGet(f, inst)
		f.PC++
	case bytecode.OpIdxSet:
		thrown = m.idxSet(f, inst)
		f.PC++
	case bytecode.OpLen:
		var n int
		n, thrown = value.Len(f.reg(inst.B))
		f.setReg(inst.A, value.Num(float64(n)))
		f.PC++
	case bytecode.OpMapContains:
		mp, ok := f.reg(inst.B).AsMap()
		if !ok {
			thrown = value.NewError(value.ErrType, "contains target is not a map")
			f.PC++
			break
		}
		key, ok := f.reg(inst.C).AsStr()
		if !ok {
			thrown = value.NewError(value.ErrType, "map key must be a string")
			f.PC++
			break
		}
		f.setReg(inst.A, value.Bool(mp.Contains(key)))
		f.PC++
	case bytecode.OpMapRemove:
		mp, ok := f.reg(inst.B).AsMap()
		if !ok {
			thrown = value.NewError(value.ErrType, "remove target is not a map")
			f.PC++
			break
		}
		key, ok := f.reg(inst.C).AsStr()
		if !ok {
			thrown = value.NewError(value.ErrType, "map key must be a string")
			f.PC++
			break
		}
		f.setReg(inst.A, value.Bool(mp.Remove(key)))
		f.PC++
	case bytecode.OpMapKeys:
		mp, ok := f.reg(inst.B).AsMap()
		if !ok {
			thrown = value.NewError(value.ErrType, "keys target is not a map")
			f.PC++
			break
		}
		out := value.NewList()
		for _, k := range mp.Keys() {
			out.Push(value.Str(k))
		}
		f.setReg(inst.A, value.ListVal(out))
		f.PC++
	case bytecode.OpMapValues:
		mp, ok := f.reg(inst.B).AsMap()
		if !ok {
			thrown = value.NewError(value.ErrType, "values target is not a map")
			f.PC++
			break
		}
		out := value.NewList()
		for _, v := range mp.Values() {
			out.Push(v)
		}
		f.setReg(inst.A, value.ListVal(out))
		f.PC++

	case bytecode.OpJump:
		f.PC = f.PC + 1 + int(inst.SBx)
	case bytecode.OpJumpIf:
		if f.reg(inst.A).Truthy() {
			f.PC = f.PC + 1 + int(inst.SBx)
		} else {
			f.PC++
		}
	case bytecode.OpJumpIfNot:
		if !f.reg(inst.A).Truthy() {
			f.PC = f.PC + 1 + int(inst.SBx)
		} else {
			f.PC++
		}

	case bytecode.OpCall:
		thrown = m.doCall(a, f, fn, inst)
	case bytecode.OpReturn:
		m.doReturn(a, f.reg(inst.A))

	case bytecode.OpExec:
		a.Pending = m.buildExecPending(a, f, inst)
		a.SuspendOn = suspendHostPending
		suspend = true

	case bytecode.OpSpawn:
		f.setReg(inst.A, value.Agent(m.spawnAgent(int(inst.Bx))))
		f.PC++
	case bytecode.OpSend:
		thrown = m.doSend(a, f, inst)
		f.PC++
	case bytecode.OpRecv:
		suspend = m.doRecv(a, f, inst.A, false)
		if !suspend {
			f.PC++
		}
	case bytecode.OpRecvTimeout:
		suspend = m.doRecv(a, f, inst.A, true)
		if !suspend {
			f.PC++
		}
	case bytecode.OpWait:
		suspend, thrown = m.doWait(a, f, inst)
		if !suspend {
			f.PC++
		}
	case bytecode.OpKill:
		if h, ok := f.reg(inst.B).AsAgent(); ok {
			m.doKill(h)
		} else {
			thrown = value.NewError(value.ErrType, "kill target is not an agent")
		}
		f.setReg(inst.A, value.None)
		f.PC++
	case bytecode.OpMLoad:
		f.setReg(inst.A, m.mload(f, inst))
		f.PC++
	case bytecode.OpMStore:
		m.mstore(f, inst)
		f.PC++

	case bytecode.OpTCall:
		a.Pending = m.buildTCallPending(a, f, fn, inst)
		a.SuspendOn = suspendHostPending
		suspend = true

	case bytecode.OpNewIter:
		var it *value.Iterator
		container := f.reg(inst.B)
		if l, ok := container.AsList(); ok {
			it = value.NewListIterator(l)
		} else if mp, ok := container.AsMap(); ok {
			it = value.NewMapIterator(mp)
		} else if s, ok := container.AsStr(); ok {
			it = value.NewStringIterator(s)
		} else {
			thrown = value.NewError(value.ErrType, "cannot iterate a "+container.Kind().String())
		}
		if thrown == nil {
			f.setReg(inst.A, value.IterVal(it))
		}
		f.PC++
	case bytecode.OpIterNext:
		thrown = m.doIterNext(f, fn, inst)

	case bytecode.OpTryBegin:
		handlerPC := f.PC + 1 + int(inst.SBx)
		f.pushHandler(handlerPC, inst.A)
		f.PC++
	case bytecode.OpTryEnd:
		f.popHandler()
		f.PC++
	case bytecode.OpThrow:
		thrown = toThrown(f.reg(inst.A))
		f.PC++
	case bytecode.OpMakeError:
		msg, _ := f.reg(inst.B).AsStr()
		f.setReg(inst.A, value.Err(value.NewError(value.ErrAssertion, msg)))
		f.PC++
	case bytecode.OpGetError:
		if a.lastError != nil {
			f.setReg(inst.A, value.Err(a.lastError))
		} else {
			f.setReg(inst.A, value.None)
		}
		f.PC++

	case bytecode.OpParseJSON:
		s, ok := f.reg(inst.B).AsStr()
		if !ok {
			thrown = value.NewError(value.ErrType, "parse_json requires a string")
			f.PC++
			break
		}
		var v value.Value
		v, thrown = value.ParseJSON(s)
		f.setReg(inst.A, v)
		f.PC++
	case bytecode.OpToJSON:
		s, err := value.ToJSON(f.reg(inst.B))
		if err != nil {
			thrown = err.(*value.ErrorValue)
		} else {
			f.setReg(inst.A, value.Str(s))
		}
		f.PC++

	case bytecode.OpEmit:
		m.Output = append(m.Output, value.ToDisplayString(f.reg(inst.A)))
		f.PC++

	default:
		thrown = value.NewError(value.ErrType, fmt.Sprintf("unsupported opcode %d", inst.Op))
		f.PC++
	}

	if thrown != nil {
		m.raise(a, thrown)
	}
	return suspend
}

// raise unwinds a's frame stack looking for a handler (spec §4.3): each
// frame's handler stack is checked innermost-first, then the frame is
// discarded and the search continues into the caller. If no handler is
// found anywhere, a terminates with the error as its exit value.
func (m *VM) raise(a *AgentInstance, e *value.ErrorValue) {
	for len(a.Frames) > 0 {
		f := a.currentFrame()
		if len(f.Handlers) > 0 {
			h := f.Handlers[len(f.Handlers)-1]
			f.Handlers = f.Handlers[:len(f.Handlers)-1]
			f.setReg(h.errReg, value.Err(e))
			a.lastError = e
			f.PC = h.handlerPC
			return
		}
		a.Frames = a.Frames[:len(a.Frames)-1]
	}
	a.Status = StatusTerminated
	a.ExitErr = e
	a.ExitValue = value.Err(e)
}

func toThrown(v value.Value) *value.ErrorValue {
	if e, ok := v.AsError(); ok {
		return e
	}
	return value.NewError(value.ErrUser, value.ToDisplayString(v))
}

func (m *VM) idxGet(f *CallFrame, inst bytecode.Instruction) *value.ErrorValue {
	container := f.reg(inst.B)
	key := f.reg(inst.C)
	if l, ok := container.AsList(); ok {
		i, ok := key.AsNum()
		if !ok {
			return value.NewError(value.ErrType, "list index must be a number")
		}
		v, ok := l.Get(int(i))
		if !ok {
			return value.NewError(value.ErrIndex, "list index out of range")
		}
		f.setReg(inst.A, v)
		return nil
	}
	if mp, ok := container.AsMap(); ok {
		k, ok := key.AsStr()
		if !ok {
			return value.NewError(value.ErrType, "map key must be a string")
		}
		v, ok := mp.Get(k)
		if !ok {
			return value.NewError(value.ErrKey, "undefined key: "+k)
		}
		f.setReg(inst.A, v)
		return nil
	}
	return value.NewError(value.ErrType, "cannot index a "+container.Kind().String())
}

func (m *VM) idxSet(f *CallFrame, inst bytecode.Instruction) *value.ErrorValue {
	container := f.reg(inst.A)
	key := f.reg(inst.B)
	val := f.reg(inst.C)
	if l, ok := container.AsList(); ok {
		i, ok := key.AsNum()
		if !ok {
			return value.NewError(value.ErrType, "list index must be a number")
		}
		if !l.Set(int(i), val) {
			return value.NewError(value.ErrIndex, "list index out of range")
		}
		return nil
	}
	if mp, ok := container.AsMap(); ok {
		k, ok := key.AsStr()
		if !ok {
			return value.NewError(value.ErrType, "map key must be a string")
		}
		mp.Set(k, val)
		return nil
	}
	return value.NewError(value.ErrType, "cannot index-assign a "+container.Kind().String())
}

// doCall implements plain and method Call dispatch (spec §4.1, §4.3).
func (m *VM) doCall(a *AgentInstance, f *CallFrame, fn *bytecode.Function, inst bytecode.Instruction) *value.ErrorValue {
	if int(inst.Bx) == bytecode.MethodSentinel {
		nopArgs := fn.Code[f.PC+1]
		nopMethod := fn.Code[f.PC+2]
		firstArg, numArgs := nopArgs.B, nopArgs.C
		f.PC += 3

		recv := f.reg(firstArg)
		handle, ok := recv.AsAgent()
		if !ok {
			return value.NewError(value.ErrType, "method call on a non-agent value")
		}
		target := m.Agents[handle]
		if target == nil || target.Status == StatusTerminated {
			return value.NewError(value.ErrUndefined, "method call on a dead or unknown agent")
		}
		desc := m.Module.Agents[target.Descriptor]
		methodConst := m.Module.Constants[nopMethod.ConstIdx()]
		methodFnIdx, ok := desc.Methods[methodConst.Str]
		if !ok {
			return value.NewError(value.ErrUndefined, "undefined method: "+methodConst.Str)
		}
		calleeFn := m.Module.Functions[methodFnIdx]
		nf := newFrame(methodFnIdx, calleeFn.NumRegs, inst.A, handle)
		copy(nf.Regs[:numArgs], f.Regs[firstArg:int(firstArg)+int(numArgs)])
		a.Frames = append(a.Frames, nf)
		return nil
	}

	nopArgs := fn.Code[f.PC+1]
	firstArg, numArgs := nopArgs.B, nopArgs.C
	f.PC += 2

	funcIdx := int(inst.Bx)
	calleeFn := m.Module.Functions[funcIdx]
	nf := newFrame(funcIdx, calleeFn.NumRegs, inst.A, f.BoundAgent)
	copy(nf.Regs[:numArgs], f.Regs[firstArg:int(firstArg)+int(numArgs)])
	a.Frames = append(a.Frames, nf)
	return nil
}

func (m *VM) doReturn(a *AgentInstance, v value.Value) {
	returning := a.currentFrame()
	a.Frames = a.Frames[:len(a.Frames)-1]
	if len(a.Frames) == 0 {
		a.Status = StatusTerminated
		a.ExitValue = v
		return
	}
	a.currentFrame().setReg(returning.ResultReg, v)
}

// buildExecPending reads inst's operands and assembles the host request
// now, while a's registers are still live, but defers the actual round
// trip through m.Host to VM.resolveHostPendingOne (spec §3, §4.3: Exec is
// a suspension point). It never returns an error itself; a host failure
// surfaces as a HostError once the request is resolved.
func (m *VM) buildExecPending(a *AgentInstance, f *CallFrame, inst bytecode.Instruction) *hostPending {
	prompt := value.ToDisplayString(f.reg(inst.B))
	model, sysPrompt := m.Config.Model, ""
	if bound, ok := m.Agents[f.BoundAgent]; ok && bound.Descriptor >= 0 {
		desc := m.Module.Agents[bound.Descriptor]
		if desc.Model != "" {
			model = desc.Model
		}
		sysPrompt = desc.SystemPrompt
	}
	req := host.ExecRequest{
		ID:           host.NewRequestID(),
		AgentID:      uint64(a.Handle),
		Model:        model,
		SystemPrompt: sysPrompt,
		UserPrompt:   prompt,
	}
	return &hostPending{
		resultReg: inst.A,
		resumePC:  f.PC + 1,
		call: func() (value.Value, *value.ErrorValue) {
			reply, err := m.Host.Exec(req)
			if err != nil {
				return value.None, value.NewError(value.ErrHost, err.Error())
			}
			return value.Str(reply), nil
		},
	}
}

func (m *VM) doSend(a *AgentInstance, f *CallFrame, inst bytecode.Instruction) *value.ErrorValue {
	h, ok := f.reg(inst.B).AsAgent()
	if !ok {
		return value.NewError(value.ErrType, "send target is not an agent")
	}
	target := m.Agents[h]
	if target == nil {
		return value.NewError(value.ErrUndefined, "send to unknown agent")
	}
	if cap := m.Config.MaxMailboxDepth; cap > 0 && len(target.Mailbox) >= cap {
		return value.NewError(value.ErrUser, "mailbox full")
	}
	target.pushMail(f.reg(inst.C))
	f.setReg(inst.A, value.None)

	if target.Status == StatusSuspended && target.SuspendOn == suspendMailbox {
		target.SuspendOn = suspendNone
		target.RecvCanTimeout = false
		target.Status = StatusReady
		m.enqueueReady(h)
	}
	return nil
}

// doRecv attempts an immediate mailbox pop. Plain `recv` (timeoutEligible
// false) never blocks: an empty mailbox resolves to none immediately
// (spec §5: "Recv. Non-blocking variant returns None on empty."). Only
// `recv_timeout` suspends on an empty mailbox, parked for either a later
// Send or the scheduler's clockless timeout fallback (see forceTimeout).
func (m *VM) doRecv(a *AgentInstance, f *CallFrame, dst uint8, timeoutEligible bool) bool {
	v, ok := a.popMail()
	if ok {
		f.setReg(dst, v)
		return false
	}
	if !timeoutEligible {
		f.setReg(dst, value.None)
		return false
	}
	a.SuspendOn = suspendMailbox
	a.RecvDst = dst
	a.RecvCanTimeout = true
	return true
}

func (m *VM) doWait(a *AgentInstance, f *CallFrame, inst bytecode.Instruction) (bool, *value.ErrorValue) {
	h, ok := f.reg(inst.B).AsAgent()
	if !ok {
		return false, value.NewError(value.ErrType, "wait target is not an agent")
	}
	target := m.Agents[h]
	if target == nil {
		return false, value.NewError(value.ErrUndefined, "wait on unknown agent")
	}
	if target.Status == StatusTerminated {
		f.setReg(inst.A, target.ExitValue)
		return false, nil
	}
	target.Waiters = append(target.Waiters, a.Handle)
	a.SuspendOn = suspendWait
	a.WaitTarget = h
	a.RecvDst = inst.A
	return true, nil
}

// doKill forcibly terminates target (spec §5): its exit value is the
// literal string "killed", distinguishing a kill from a normal return or
// a thrown error, and it is not routed through any try/catch handler.
func (m *VM) doKill(h value.AgentHandle) {
	target := m.Agents[h]
	if target == nil || target.Status == StatusTerminated {
		return
	}
	target.Frames = nil
	target.Status = StatusTerminated
	target.ExitValue = value.Str("killed")
	target.Pending = nil // discard any in-flight Exec/TCall (spec §4.5 cancellation)
	m.settle(target)
}

func (m *VM) mload(f *CallFrame, inst bytecode.Instruction) value.Value {
	target := m.Agents[f.BoundAgent]
	desc := m.Module.Agents[target.Descriptor]
	field := desc.Memory[inst.Bx]
	if v, ok := target.Memory[field.Name]; ok {
		return v
	}
	return constToValue(m.Module.Constants[field.DefaultConst])
}

func (m *VM) mstore(f *CallFrame, inst bytecode.Instruction) {
	target := m.Agents[f.BoundAgent]
	desc := m.Module.Agents[target.Descriptor]
	field := desc.Memory[inst.Bx]
	target.Memory[field.Name] = f.reg(inst.A)
}

// buildTCallPending is buildExecPending's counterpart for TCall (spec §3,
// §4.3: ToolCall is a suspension point). It resolves the two-word
// TCall+args encoding and reads every argument register now, but leaves
// the actual m.Host.ToolCall round trip to VM.resolveHostPendingOne.
func (m *VM) buildTCallPending(a *AgentInstance, f *CallFrame, fn *bytecode.Function, inst bytecode.Instruction) *hostPending {
	nopArgs := fn.Code[f.PC+1]
	firstArg, numArgs := nopArgs.B, nopArgs.C
	resumePC := f.PC + 2

	tool := m.Module.Tools[int(inst.Bx)]
	named := make(map[string]any, numArgs)
	for i := 0; i < int(numArgs); i++ {
		named[tool.Params[i].Name] = toGo(f.reg(firstArg + uint8(i)))
	}
	req := host.ToolCallRequest{
		ID:        host.NewRequestID(),
		AgentID:   uint64(a.Handle),
		ToolName:  tool.Name,
		NamedArgs: named,
	}
	return &hostPending{
		resultReg: inst.A,
		resumePC:  resumePC,
		call: func() (value.Value, *value.ErrorValue) {
			result, err := m.Host.ToolCall(req)
			if err != nil {
				return value.None, value.NewError(value.ErrHost, err.Error())
			}
			return fromGo(result), nil
		},
	}
}

// doIterNext advances the loop iterator carried by the trailing Nop
// (spec §4.1). On exhaustion or mutation it jumps to the loop's exit
// using the same PC+1+offset convention every branch instruction uses,
// regardless of this instruction's two-word encoding.
func (m *VM) doIterNext(f *CallFrame, fn *bytecode.Function, inst bytecode.Instruction) *value.ErrorValue {
	iterReg := fn.Code[f.PC+1].B
	it, ok := f.reg(iterReg).AsIterator()
	if !ok {
		f.PC += 2
		return value.NewError(value.ErrType, "not an iterator")
	}
	v, has, err := it.Next()
	if err != nil {
		f.PC += 2
		return err
	}
	if !has {
		f.PC = f.PC + 1 + int(inst.SBx)
		return nil
	}
	f.setReg(inst.A, v)
	f.PC += 2
	return nil
}

func toGo(v value.Value) any {
	switch v.Kind() {
	case value.KNone:
		return nil
	case value.KBool:
		b, _ := v.AsBool()
		return b
	case value.KNum:
		n, _ := v.AsNum()
		return n
	case value.KStr:
		s, _ := v.AsStr()
		return s
	case value.KList:
		l, _ := v.AsList()
		items := l.Items()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toGo(it)
		}
		return out
	case value.KMap:
		mp, _ := v.AsMap()
		out := make(map[string]any, mp.Len())
		for _, k := range mp.Keys() {
			vv, _ := mp.Get(k)
			out[k] = toGo(vv)
		}
		return out
	default:
		return value.ToDisplayString(v)
	}
}

func fromGo(a any) value.Value {
	switch t := a.(type) {
	case nil:
		return value.None
	case bool:
		return value.Bool(t)
	case float64:
		return value.Num(t)
	case int:
		return value.Num(float64(t))
	case string:
		return value.Str(t)
	case []any:
		l := value.NewList()
		for _, it := range t {
			l.Push(fromGo(it))
		}
		return value.ListVal(l)
	case map[string]any:
		mp := value.NewMap()
		for k, v := range t {
			mp.Set(k, fromGo(v))
		}
		return value.MapVal(mp)
	default:
		return value.Str(fmt.Sprintf("%v", t))
	}
}
