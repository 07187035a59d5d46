// Package codegen (continued): the generator itself. Grounded in the
// windlang bytecode generator's shape (_examples/Peirceman-windlang/bytecode/generator.go:
// a generator struct threading a running instruction buffer, a var/scope
// table and a placeholder-then-patch approach to jumps) adapted from its
// stack-machine, seek-and-overwrite-on-disk style to an in-memory register
// allocator with slice-index backpatching, since Agentus builds a
// bytecode.Module value rather than streaming instructions straight to a
// file.
package codegen

import (
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/vmerr"
)

// Generator lowers a validated Program into a bytecode.Module.
type Generator struct {
	pool *bytecode.ConstPool

	fnIndex    map[string]int
	agentIndex map[string]int
	toolIndex  map[string]int

	fnDecls []*FnDecl
	tools   []*ToolDecl
	agents  []*AgentDecl

	functions  []bytecode.Function
	toolDescs  []bytecode.ToolDescriptor
	agentDescs []bytecode.AgentDescriptor

	maxRegs int
}

// Generate compiles prog into a Module (spec §4.2) using the hardware
// register cap (spec §4.1: one byte of index space per instruction).
func Generate(prog *Program) (bytecode.Module, error) {
	return GenerateWithRegisterCap(prog, hardMaxRegs)
}

// GenerateWithRegisterCap compiles prog the way Generate does, but rejects
// any function needing more than regCap live registers at once. Embedders
// use a lower cap than the hardware ceiling to bound the memory a single
// compiled module can demand at runtime (config.Config.MaxRegisters,
// SPEC_FULL.md §1.3); regCap is clamped to hardMaxRegs if it exceeds it.
func GenerateWithRegisterCap(prog *Program, regCap int) (bytecode.Module, error) {
	if regCap <= 0 || regCap > hardMaxRegs {
		regCap = hardMaxRegs
	}
	g := &Generator{
		pool:       bytecode.NewConstPool(),
		fnIndex:    make(map[string]int),
		agentIndex: make(map[string]int),
		toolIndex:  make(map[string]int),
		fnDecls:    prog.Fns,
		tools:      prog.Tools,
		agents:     prog.Agents,
		maxRegs:    regCap,
	}

	// Reserve function-table slots up front so calls can reference a
	// callee regardless of declaration order (mutual recursion, forward
	// references such as fib calling itself).
	g.functions = make([]bytecode.Function, len(prog.Fns))
	for i, fn := range prog.Fns {
		g.fnIndex[fn.Name] = i
	}

	for i, t := range prog.Tools {
		g.toolIndex[t.Name] = i
	}
	for i, a := range prog.Agents {
		g.agentIndex[a.Name] = i
	}

	for _, fn := range prog.Fns {
		compiled, err := g.compileFunction(fn, nil)
		if err != nil {
			return bytecode.Module{}, err
		}
		g.functions[g.fnIndex[fn.Name]] = compiled
	}

	g.toolDescs = make([]bytecode.ToolDescriptor, len(prog.Tools))
	for i, t := range prog.Tools {
		desc, err := g.compileTool(t)
		if err != nil {
			return bytecode.Module{}, err
		}
		g.toolDescs[i] = desc
	}

	g.agentDescs = make([]bytecode.AgentDescriptor, len(prog.Agents))
	for i, a := range prog.Agents {
		desc, err := g.compileAgent(a)
		if err != nil {
			return bytecode.Module{}, err
		}
		g.agentDescs[i] = desc
	}

	entry, err := g.compileFunction(&FnDecl{Name: "entry", Body: prog.Body}, nil)
	if err != nil {
		return bytecode.Module{}, err
	}
	entryIdx := len(g.functions)
	g.functions = append(g.functions, entry)

	return bytecode.Module{
		Constants: g.pool.Seal(),
		Functions: g.functions,
		Agents:    g.agentDescs,
		Tools:     g.toolDescs,
		Entry:     entryIdx,
	}, nil
}

func (g *Generator) constFold(e Expr) (int, error) {
	switch v := e.(type) {
	case *NumberLit:
		return g.pool.Num(v.Value), nil
	case *StringLit:
		if len(v.Exprs) != 0 {
			return 0, vmerr.NotConstant("default value")
		}
		return g.pool.Str(v.Parts[0]), nil
	case *BoolLit:
		return g.pool.Bool(v.Value), nil
	case *NoneLit:
		return g.pool.None(), nil
	default:
		return 0, vmerr.NotConstant("default value")
	}
}

func fieldType(t Type) bytecode.FieldType {
	switch t {
	case TNone:
		return bytecode.TypeNone
	case TBool:
		return bytecode.TypeBool
	case TNum:
		return bytecode.TypeNum
	case TStr:
		return bytecode.TypeStr
	case TList:
		return bytecode.TypeList
	case TMap:
		return bytecode.TypeMap
	case TAgent:
		return bytecode.TypeAgent
	default:
		return bytecode.TypeAny
	}
}

func (g *Generator) compileTool(t *ToolDecl) (bytecode.ToolDescriptor, error) {
	params := make([]bytecode.Param, len(t.Params))
	for i, p := range t.Params {
		def := -1
		if p.Default != nil {
			idx, err := g.constFold(p.Default)
			if err != nil {
				return bytecode.ToolDescriptor{}, err
			}
			def = idx
		}
		params[i] = bytecode.Param{Name: p.Name, Type: fieldType(p.Type), DefaultConst: def}
	}
	return bytecode.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Params:      params,
		Returns:     fieldType(t.Returns),
	}, nil
}

func (g *Generator) compileAgent(a *AgentDecl) (bytecode.AgentDescriptor, error) {
	memory := make([]bytecode.MemoryField, len(a.Memory))
	for i, f := range a.Memory {
		def := g.pool.None()
		if f.Default != nil {
			idx, err := g.constFold(f.Default)
			if err != nil {
				return bytecode.AgentDescriptor{}, err
			}
			def = idx
		}
		memory[i] = bytecode.MemoryField{Name: f.Name, Type: fieldType(f.Type), DefaultConst: def}
	}

	methods := make(map[string]int, len(a.Methods))
	order := make([]string, len(a.Methods))
	for i, m := range a.Methods {
		compiled, err := g.compileFunction(m, a)
		if err != nil {
			return bytecode.AgentDescriptor{}, err
		}
		idx := len(g.functions)
		g.functions = append(g.functions, compiled)
		methods[m.Name] = idx
		order[i] = m.Name
	}

	return bytecode.AgentDescriptor{
		Name:         a.Name,
		Model:        a.Model,
		SystemPrompt: a.SystemPrompt,
		Memory:       memory,
		Methods:      methods,
		MethodOrder:  order,
	}, nil
}

// compileFunction lowers a function or method body into a bytecode.Function
// (spec §4.2). When agent is non-nil, register 0 is reserved for the
// receiver and self.field resolves against agent's memory layout.
func (g *Generator) compileFunction(fn *FnDecl, agent *AgentDecl) (bytecode.Function, error) {
	fg := newFuncGen(g, fn.Name, agent)
	fg.pushScope()

	numParams := len(fn.Params)
	if agent != nil {
		if _, err := fg.declareLocal("self"); err != nil {
			return bytecode.Function{}, err
		}
		numParams++
	}
	for _, p := range fn.Params {
		if _, err := fg.declareLocal(p.Name); err != nil {
			return bytecode.Function{}, err
		}
	}

	if err := fg.compileStmts(fn.Body); err != nil {
		return bytecode.Function{}, err
	}

	// Fall off the end returns none (spec §4.3 implies every function
	// completes via Return; a body without an explicit return still
	// needs one emitted).
	dst, err := fg.allocTemp()
	if err != nil {
		return bytecode.Function{}, err
	}
	fg.emit(bytecode.OpLoadNone, dst, 0, 0)
	fg.emit(bytecode.OpReturn, dst, 0, 0)
	fg.release(1)

	fg.popScope()
	return fg.finish(numParams), nil
}

// compileBlock compiles a nested statement list in its own scope.
func (fg *funcGen) compileBlock(stmts []Stmt) error {
	fg.pushScope()
	if err := fg.compileStmts(stmts); err != nil {
		return err
	}
	fg.popScope()
	return nil
}

func (fg *funcGen) compileStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := fg.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}
