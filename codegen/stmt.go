package codegen

import (
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/vmerr"
)

func (fg *funcGen) compileStmt(s Stmt) error {
	switch s := s.(type) {
	case *LetStmt:
		fg.curPos = s.Pos
		reg, err := fg.declareLocal(s.Name)
		if err != nil {
			return err
		}
		return fg.compileExpr(s.Expr, reg)

	case *AssignStmt:
		fg.curPos = s.Pos
		return fg.compileAssign(s)

	case *ExprStmt:
		fg.curPos = s.Pos
		dst, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(s.Expr, dst); err != nil {
			return err
		}
		fg.release(1)
		return nil

	case *EmitStmt:
		fg.curPos = s.Pos
		dst, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(s.Expr, dst); err != nil {
			return err
		}
		fg.emit(bytecode.OpEmit, dst, 0, 0)
		fg.release(1)
		return nil

	case *ReturnStmt:
		fg.curPos = s.Pos
		dst, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if s.Expr == nil {
			fg.emit(bytecode.OpLoadNone, dst, 0, 0)
		} else if err := fg.compileExpr(s.Expr, dst); err != nil {
			return err
		}
		fg.emit(bytecode.OpReturn, dst, 0, 0)
		fg.release(1)
		return nil

	case *IfStmt:
		return fg.compileIf(s)

	case *WhileStmt:
		return fg.compileWhile(s)

	case *ForInStmt:
		return fg.compileForIn(s)

	case *TryStmt:
		return fg.compileTry(s)

	case *ThrowStmt:
		fg.curPos = s.Pos
		dst, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(s.Expr, dst); err != nil {
			return err
		}
		fg.emit(bytecode.OpThrow, dst, 0, 0)
		fg.release(1)
		return nil

	case *AssertStmt:
		return fg.compileAssert(s)

	case *RetryStmt:
		return fg.compileRetry(s)

	default:
		return vmerr.MalformedModule("unknown statement node")
	}
}

func (fg *funcGen) compileAssign(s *AssignStmt) error {
	switch t := s.Target.(type) {
	case NameLvalue:
		reg, ok := fg.resolveLocal(t.Name)
		if !ok {
			return vmerr.UndefinedName("variable", t.Name)
		}
		return fg.compileExpr(s.Expr, reg)

	case IndexLvalue:
		containerReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(t.Container, containerReg); err != nil {
			return err
		}
		keyReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(t.Key, keyReg); err != nil {
			return err
		}
		valReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(s.Expr, valReg); err != nil {
			return err
		}
		fg.emit(bytecode.OpIdxSet, containerReg, keyReg, valReg)
		fg.release(3)
		return nil

	case FieldLvalue:
		if fg.agent == nil {
			return vmerr.SelfOutsideMethod(t.Field)
		}
		idx, ok := fg.fieldIndex[t.Field]
		if !ok {
			return vmerr.UndefinedName("memory field", t.Field)
		}
		valReg, err := fg.allocTemp()
		if err != nil {
			return err
		}
		if err := fg.compileExpr(s.Expr, valReg); err != nil {
			return err
		}
		fg.emitABx(bytecode.OpMStore, valReg, uint16(idx))
		fg.release(1)
		return nil

	default:
		return vmerr.MalformedModule("unknown assignment target")
	}
}

func (fg *funcGen) compileIf(s *IfStmt) error {
	fg.curPos = s.Pos
	condReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(s.Cond, condReg); err != nil {
		return err
	}
	jifPC := fg.emitAsBx(bytecode.OpJumpIfNot, condReg)
	fg.release(1)

	if err := fg.compileBlock(s.Then); err != nil {
		return err
	}

	if s.Else != nil {
		jmpPC := fg.emitSBx(bytecode.OpJump)
		if err := fg.patchAsBx(jifPC, fg.pc()); err != nil {
			return err
		}
		if err := fg.compileBlock(s.Else); err != nil {
			return err
		}
		return fg.patchSBx(jmpPC, fg.pc())
	}

	return fg.patchAsBx(jifPC, fg.pc())
}

func (fg *funcGen) compileWhile(s *WhileStmt) error {
	fg.curPos = s.Pos
	loopStart := fg.pc()
	condReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(s.Cond, condReg); err != nil {
		return err
	}
	jifPC := fg.emitAsBx(bytecode.OpJumpIfNot, condReg)
	fg.release(1)

	if err := fg.compileBlock(s.Body); err != nil {
		return err
	}

	backPC := fg.emitSBx(bytecode.OpJump)
	if err := fg.patchSBx(backPC, loopStart); err != nil {
		return err
	}
	return fg.patchAsBx(jifPC, fg.pc())
}

func (fg *funcGen) compileForIn(s *ForInStmt) error {
	fg.curPos = s.Pos
	containerReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(s.Expr, containerReg); err != nil {
		return err
	}
	iterReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emit(bytecode.OpNewIter, iterReg, containerReg, 0)

	fg.pushScope()
	varReg, err := fg.declareLocal(s.Var)
	if err != nil {
		return err
	}

	loopStart := fg.pc()
	stepPC := fg.emitAsBx(bytecode.OpIterNext, varReg)
	fg.emitNop(bytecode.NopIterArgs(iterReg))

	if err := fg.compileBlock(s.Body); err != nil {
		return err
	}

	backPC := fg.emitSBx(bytecode.OpJump)
	if err := fg.patchSBx(backPC, loopStart); err != nil {
		return err
	}
	if err := fg.patchAsBx(stepPC, fg.pc()); err != nil {
		return err
	}

	fg.popScope() // releases varReg
	fg.release(2) // iterReg, containerReg
	return nil
}

func (fg *funcGen) compileTry(s *TryStmt) error {
	fg.curPos = s.Pos
	handlerReg, err := fg.allocTemp()
	if err != nil {
		return err
	}

	tryBeginPC := fg.emitAsBx(bytecode.OpTryBegin, handlerReg)
	if err := fg.compileBlock(s.Body); err != nil {
		return err
	}
	fg.emit(bytecode.OpTryEnd, 0, 0, 0)
	skipPC := fg.emitSBx(bytecode.OpJump)

	if err := fg.patchAsBx(tryBeginPC, fg.pc()); err != nil {
		return err
	}
	fg.pushScope()
	fg.bindExisting(s.ErrName, handlerReg)
	if err := fg.compileStmts(s.Handler); err != nil {
		return err
	}
	fg.popScope() // releases handlerReg

	return fg.patchSBx(skipPC, fg.pc())
}

func (fg *funcGen) compileAssert(s *AssertStmt) error {
	fg.curPos = s.Pos
	condReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(s.Cond, condReg); err != nil {
		return err
	}
	jifPC := fg.emitAsBx(bytecode.OpJumpIf, condReg)
	fg.release(1)

	msgReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if s.Msg != nil {
		if err := fg.compileExpr(s.Msg, msgReg); err != nil {
			return err
		}
	} else {
		idx := fg.gen.pool.Str("assertion failed")
		fg.emitABx(bytecode.OpLoadConst, msgReg, uint16(idx))
	}
	errReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emit(bytecode.OpMakeError, errReg, msgReg, 0)
	fg.emit(bytecode.OpThrow, errReg, 0, 0)
	fg.release(2)

	return fg.patchAsBx(jifPC, fg.pc())
}

// compileRetry lowers `retry N { Body }` (spec §4.2): run Body inside a
// try; on catch, decrement a counter and loop while it remains positive;
// once exhausted, re-throw the last error unchanged via GetError.
func (fg *funcGen) compileRetry(s *RetryStmt) error {
	fg.curPos = s.Pos
	counterReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	if err := fg.compileExpr(s.N, counterReg); err != nil {
		return err
	}
	handlerReg, err := fg.allocTemp()
	if err != nil {
		return err
	}

	loopStart := fg.pc()
	tryBeginPC := fg.emitAsBx(bytecode.OpTryBegin, handlerReg)
	if err := fg.compileBlock(s.Body); err != nil {
		return err
	}
	fg.emit(bytecode.OpTryEnd, 0, 0, 0)
	doneJumpPC := fg.emitSBx(bytecode.OpJump)

	if err := fg.patchAsBx(tryBeginPC, fg.pc()); err != nil {
		return err
	}

	oneReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emitABx(bytecode.OpLoadConst, oneReg, uint16(fg.gen.pool.Num(1)))
	fg.emit(bytecode.OpSub, counterReg, counterReg, oneReg)
	fg.release(1)

	zeroReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emitABx(bytecode.OpLoadConst, zeroReg, uint16(fg.gen.pool.Num(0)))
	cmpReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emit(bytecode.OpGt, cmpReg, counterReg, zeroReg)
	jifPC := fg.emitAsBx(bytecode.OpJumpIfNot, cmpReg)
	fg.release(2) // zeroReg, cmpReg

	backPC := fg.emitSBx(bytecode.OpJump)
	if err := fg.patchSBx(backPC, loopStart); err != nil {
		return err
	}
	if err := fg.patchAsBx(jifPC, fg.pc()); err != nil {
		return err
	}

	errReg, err := fg.allocTemp()
	if err != nil {
		return err
	}
	fg.emit(bytecode.OpGetError, errReg, 0, 0)
	fg.emit(bytecode.OpThrow, errReg, 0, 0)
	fg.release(1)

	if err := fg.patchSBx(doneJumpPC, fg.pc()); err != nil {
		return err
	}
	fg.release(2) // handlerReg, counterReg
	return nil
}
