package codegen

import (
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/vmerr"
)

var binOpcode = [...]bytecode.Opcode{
	OpAdd:    bytecode.OpAdd,
	OpSub:    bytecode.OpSub,
	OpMul:    bytecode.OpMul,
	OpDiv:    bytecode.OpDiv,
	OpMod:    bytecode.OpMod,
	OpConcat: bytecode.OpConcat,
	OpEq:     bytecode.OpEq,
	OpNe:     bytecode.OpNe,
	OpLt:     bytecode.OpLt,
	OpLe:     bytecode.OpLe,
	OpGt:     bytecode.OpGt,
	OpGe:     bytecode.OpGe,
}

// compileExpr compiles e so its result ends up in register dst.
func (fg *funcGen) compileExpr(e Expr, dst uint8) error {
	switch e := e.(type) {
	case *NumberLit:
		fg.curPos = e.Pos
		fg.emitABx(bytecode.OpLoadConst, dst, uint16(fg.gen.pool.Num(e.Value)))
		return nil

	case *BoolLit:
		fg.curPos = e.Pos
		var b uint8
		if e.Value {
			b = 1
		}
		fg.emit(bytecode.OpLoadBool, dst, b, 0)
		return nil

	case *NoneLit:
		fg.curPos = e.Pos
		fg.emit(bytecode.OpLoadNone, dst, 0, 0)
		return nil

	case *StringLit:
		fg.curPos = e.Pos
		return fg.compileStringLit(e, dst)

	case *Ident:
		fg.curPos = e.Pos
		reg, ok := fg.resolveLocal(e.Name)
		if !ok {
			return vmerr.UndefinedName("variable", e.Name)
		}
		if reg != dst {
			fg.emit(bytecode.OpMove, dst, reg, 0)
		}
		return nil

	case *BinaryExpr:
		fg.curPos = e.Pos
		return fg.compileBinary(e, dst)

	case *UnaryExpr:
		fg.curPos = e.Pos
		if err := fg.compileExpr(e.Operand, dst); err != nil {
			return err
		}
		switch e.Op {
		case OpNeg:
			fg.emit(bytecode.OpNeg, dst, dst, 0)
		case OpNot:
			fg.emit(bytecode.OpNot, dst, dst, 0)
		}
		return nil

	case *CallExpr:
		fg.curPos = e.Pos
		return fg.compileCall(e, dst)

	case *MethodCallExpr:
		fg.curPos = e.Pos
		return fg.compileMethodCall(e, dst)

	case *IndexExpr:
		fg.curPos = e.Pos
		containerReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Container, containerReg); err != nil {
			return err
		}
		keyReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Key, keyReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpIdxGet, dst, containerReg, keyReg)
		fg.release(2)
		return nil

	case *FieldExpr:
		fg.curPos = e.Pos
		if fg.agent == nil {
			return vmerr.SelfOutsideMethod(e.Field)
		}
		idx, ok := fg.fieldIndex[e.Field]
		if !ok {
			return vmerr.UndefinedName("memory field", e.Field)
		}
		fg.emitABx(bytecode.OpMLoad, dst, uint16(idx))
		return nil

	case *ListLit:
		fg.curPos = e.Pos
		fg.emit(bytecode.OpNewList, dst, 0, 0)
		for _, el := range e.Elems {
			r, err := fg.allocTemp()
			if err != nil {
				return err
			}
			if err := fg.compileExpr(el, r); err != nil {
				return err
			}
			fg.emit(bytecode.OpListPush, dst, r, 0)
			fg.release(1)
		}
		return nil

	case *MapLit:
		fg.curPos = e.Pos
		fg.emit(bytecode.OpNewMap, dst, 0, 0)
		for _, ent := range e.Entries {
			keyReg, err := fg.allocTemp()
			if err != nil {
				return err
			}
			fg.emitABx(bytecode.OpLoadConst, keyReg, uint16(fg.gen.pool.Str(ent.Key)))
			valReg, err := fg.allocTemp()
			if err != nil {
				return err
			}
			if err := fg.compileExpr(ent.Value, valReg); err != nil {
				return err
			}
			fg.emit(bytecode.OpIdxSet, dst, keyReg, valReg)
			fg.release(2)
		}
		return nil

	case *ExecExpr:
		fg.curPos = e.Pos
		promptReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Prompt, promptReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpExec, dst, promptReg, 0)
		fg.release(1)
		return nil

	case *SendExpr:
		fg.curPos = e.Pos
		targetReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Target, targetReg); err != nil {
			return err
		}
		valReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Value, valReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpSend, dst, targetReg, valReg)
		fg.release(2)
		return nil

	case *RecvExpr:
		fg.curPos = e.Pos
		fg.emit(bytecode.OpRecv, dst, 0, 0)
		return nil

	case *RecvTimeoutExpr:
		fg.curPos = e.Pos
		timeoutReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Timeout, timeoutReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpRecvTimeout, dst, timeoutReg, 0)
		fg.release(1)
		return nil

	case *WaitExpr:
		fg.curPos = e.Pos
		targetReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Target, targetReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpWait, dst, targetReg, 0)
		fg.release(1)
		return nil

	case *KillExpr:
		fg.curPos = e.Pos
		targetReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Target, targetReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpKill, dst, targetReg, 0)
		fg.release(1)
		return nil

	case *ParseJSONExpr:
		fg.curPos = e.Pos
		srcReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Expr, srcReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpParseJSON, dst, srcReg, 0)
		fg.release(1)
		return nil

	case *ToJSONExpr:
		fg.curPos = e.Pos
		srcReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Expr, srcReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpToJSON, dst, srcReg, 0)
		fg.release(1)
		return nil

	case *LenExpr:
		fg.curPos = e.Pos
		srcReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Expr, srcReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpLen, dst, srcReg, 0)
		fg.release(1)
		return nil

	default:
		return vmerr.MalformedModule("unknown expression node")
	}
}

// compileStringLit lowers a possibly-interpolated string template (spec
// §4.2): the first literal part loads into dst, then each embedded
// expression is converted to its canonical textual form and concatenated,
// alternating with the following literal part.
func (fg *funcGen) compileStringLit(e *StringLit, dst uint8) error {
	fg.emitABx(bytecode.OpLoadConst, dst, uint16(fg.gen.pool.Str(e.Parts[0])))

	for i, expr := range e.Exprs {
		valReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(expr, valReg); err != nil {
			return err
		}
		strReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		fg.emit(bytecode.OpToStr, strReg, valReg, 0)
		fg.emit(bytecode.OpConcat, dst, dst, strReg)
		fg.release(2)

		if lit := e.Parts[i+1]; lit != "" {
			litReg, err := fg.allocTemp()
			if err != nil {
				return err
			}
			fg.emitABx(bytecode.OpLoadConst, litReg, uint16(fg.gen.pool.Str(lit)))
			fg.emit(bytecode.OpConcat, dst, dst, litReg)
			fg.release(1)
		}
	}
	return nil
}

// compileBinary lowers `and`/`or` with short-circuit evaluation and every
// other binary operator eagerly (spec §6).
func (fg *funcGen) compileBinary(e *BinaryExpr, dst uint8) error {
	switch e.Op {
	case OpAnd:
		if err := fg.compileExpr(e.Left, dst); err != nil {
			return err
		}
		jifPC := fg.emitAsBx(bytecode.OpJumpIfNot, dst)
		if err := fg.compileExpr(e.Right, dst); err != nil {
			return err
		}
		return fg.patchAsBx(jifPC, fg.pc())

	case OpOr:
		if err := fg.compileExpr(e.Left, dst); err != nil {
			return err
		}
		jifPC := fg.emitAsBx(bytecode.OpJumpIf, dst)
		if err := fg.compileExpr(e.Right, dst); err != nil {
			return err
		}
		return fg.patchAsBx(jifPC, fg.pc())

	default:
		if err := fg.compileExpr(e.Left, dst); err != nil {
			return err
		}
		rhsReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(e.Right, rhsReg); err != nil {
			return err
		}
		fg.emit(binOpcode[e.Op], dst, dst, rhsReg)
		fg.release(1)
		return nil
	}
}

// compileArgs compiles each argument into its own freshly allocated
// temporary. Because temporaries are handed out and held without
// intervening releases, they land in the consecutive block spec §4.2
// requires: each sub-expression's own scratch registers are allocated
// above the block and released before the next argument is compiled.
func (fg *funcGen) compileArgs(args []Expr) (uint8, error) {
	if len(args) == 0 {
		return uint8(fg.nextReg), nil
	}
	first, err := fg.allocTemp()
	if err != nil {
		return 0, err
	}
	if err := fg.compileExpr(args[0], first); err != nil {
		return 0, err
	}
	for _, a := range args[1:] {
		r, err := fg.allocTemp()
		if err != nil {
			return 0, err
		}
		if err := fg.compileExpr(a, r); err != nil {
			return 0, err
		}
	}
	return first, nil
}

// builtinArity gives the fixed argument count for each collection builtin
// (spec §4.3): push mutates a list in place, contains/remove/keys/values
// operate on a map. These names are reserved and cannot be shadowed by a
// fn, tool or agent declaration.
var builtinArity = map[string]int{
	"push":     2,
	"contains": 2,
	"remove":   2,
	"keys":     1,
	"values":   1,
}

func (fg *funcGen) compileBuiltinCall(name string, args []Expr, dst uint8) (bool, error) {
	want, ok := builtinArity[name]
	if !ok {
		return false, nil
	}
	if len(args) != want {
		return true, vmerr.ArgumentCount(name, want, len(args))
	}

	first, err := fg.allocTemp()
	if err != nil {
		return true, err
	}
	if err := fg.compileExpr(args[0], first); err != nil {
		return true, err
	}
	var second uint8
	if want == 2 {
		second, err = fg.allocTemp()
		if err != nil {
			return true, err
		}
		if err := fg.compileExpr(args[1], second); err != nil {
			return true, err
		}
	}

	switch name {
	case "push":
		fg.emit(bytecode.OpListPush, first, second, 0)
		fg.emit(bytecode.OpLoadNone, dst, 0, 0)
	case "contains":
		fg.emit(bytecode.OpMapContains, dst, first, second)
	case "remove":
		fg.emit(bytecode.OpMapRemove, dst, first, second)
	case "keys":
		fg.emit(bytecode.OpMapKeys, dst, first, 0)
	case "values":
		fg.emit(bytecode.OpMapValues, dst, first, 0)
	}
	fg.release(want)
	return true, nil
}

func (fg *funcGen) compileCall(e *CallExpr, dst uint8) error {
	if handled, err := fg.compileBuiltinCall(e.Callee, e.Args, dst); handled {
		return err
	}

	if idx, ok := fg.gen.agentIndex[e.Callee]; ok {
		if len(e.Args) != 0 {
			return vmerr.ArgumentCount(e.Callee, 0, len(e.Args))
		}
		fg.emitABx(bytecode.OpSpawn, dst, uint16(idx))
		return nil
	}

	if idx, ok := fg.gen.fnIndex[e.Callee]; ok {
		fn := fg.gen.fnDecls[idx]
		if len(e.Args) != len(fn.Params) {
			return vmerr.ArgumentCount(e.Callee, len(fn.Params), len(e.Args))
		}
		first, err := fg.compileArgs(e.Args)
		if err != nil {
			return err
		}
		fg.emitABx(bytecode.OpCall, dst, uint16(idx))
		fg.emitNop(bytecode.NopArgs(first, uint8(len(e.Args))))
		fg.release(len(e.Args))
		return nil
	}

	if idx, ok := fg.gen.toolIndex[e.Callee]; ok {
		return fg.compileToolCall(idx, e.Args, dst)
	}

	return vmerr.UndefinedName("function", e.Callee)
}

func (fg *funcGen) compileToolCall(idx int, args []Expr, dst uint8) error {
	tool := fg.gen.toolDescs[idx]
	if len(args) > len(tool.Params) {
		return vmerr.ArgumentCount(tool.Name, len(tool.Params), len(args))
	}

	total := len(tool.Params)
	var first uint8
	for i := 0; i < total; i++ {
		r, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if i == 0 {
			first = r
		}
		if i < len(args) {
			if err := fg.compileExpr(args[i], r); err != nil {
				return err
			}
			continue
		}
		p := tool.Params[i]
		if p.DefaultConst < 0 {
			return vmerr.ArgumentCount(tool.Name, total, len(args))
		}
		fg.emitABx(bytecode.OpLoadConst, r, uint16(p.DefaultConst))
	}

	fg.emitABx(bytecode.OpTCall, dst, uint16(idx))
	fg.emitNop(bytecode.NopArgs(first, uint8(total)))
	fg.release(total)
	return nil
}

// compileMethodCall lowers `recv.method(args...)` to the three-word method
// dispatch sequence (spec §4.1): Call with the 0xFFFE sentinel, a Nop
// carrying (first_arg_reg, num_args_incl_self), and a Nop carrying the
// method name's constant index.
func (fg *funcGen) compileMethodCall(e *MethodCallExpr, dst uint8) error {
	recvReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(e.Receiver, recvReg); err != nil {
		return err
	}
	for _, a := range e.Args {
		r, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(a, r); err != nil {
			return err
		}
	}

	methodIdx := fg.gen.pool.Str(e.Method)
	fg.emitABx(bytecode.OpCall, dst, bytecode.MethodSentinel)
	fg.emitNop(bytecode.NopArgs(recvReg, uint8(1+len(e.Args))))
	fg.emitNop(bytecode.NopConstIdx(uint16(methodIdx)))
	fg.release(1 + len(e.Args))
	return nil
}
