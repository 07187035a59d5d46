package codegen

import (
	"encoding/json"
	"os"
	"reflect"
	"testing"

	"github.com/agentusdev/agentus/config"
	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/value"
	"github.com/agentusdev/agentus/vm"
)

// runProgram compiles prog and runs it through a real VM the way an
// end-to-end scenario in SPEC_FULL.md would, blind to the fact that the
// AST above never came through a real lexer/parser (spec.md §1 Non-goals).
func runProgram(t *testing.T, prog *Program) []string {
	t.Helper()
	module, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	m := vm.New(module, host.NoOp{}, nil, config.Defaults())
	out, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out
}

func str(s string) *StringLit { return &StringLit{Parts: []string{s}} }

func TestGenerateEmitLiteral(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&EmitStmt{Expr: str("hello")},
	}}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "hello" {
		t.Fatalf("got %v, want [\"hello\"]", out)
	}
}

func TestGenerateArithmeticAndLet(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&LetStmt{Name: "x", Expr: &BinaryExpr{Op: OpAdd, Left: &NumberLit{Value: 2}, Right: &NumberLit{Value: 3}}},
		&EmitStmt{Expr: &Ident{Name: "x"}},
	}}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "5" {
		t.Fatalf("got %v, want [\"5\"]", out)
	}
}

func TestGenerateIfElse(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&IfStmt{
			Cond: &BoolLit{Value: false},
			Then: []Stmt{&EmitStmt{Expr: str("yes")}},
			Else: []Stmt{&EmitStmt{Expr: str("no")}},
		},
	}}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "no" {
		t.Fatalf("got %v, want [\"no\"]", out)
	}
}

func TestGenerateWhileLoop(t *testing.T) {
	// let i = 0; let total = 0
	// while i < 3 { total = total + i; i = i + 1 }
	// emit total
	prog := &Program{Body: []Stmt{
		&LetStmt{Name: "i", Expr: &NumberLit{Value: 0}},
		&LetStmt{Name: "total", Expr: &NumberLit{Value: 0}},
		&WhileStmt{
			Cond: &BinaryExpr{Op: OpLt, Left: &Ident{Name: "i"}, Right: &NumberLit{Value: 3}},
			Body: []Stmt{
				&AssignStmt{Target: NameLvalue{Name: "total"}, Expr: &BinaryExpr{Op: OpAdd, Left: &Ident{Name: "total"}, Right: &Ident{Name: "i"}}},
				&AssignStmt{Target: NameLvalue{Name: "i"}, Expr: &BinaryExpr{Op: OpAdd, Left: &Ident{Name: "i"}, Right: &NumberLit{Value: 1}}},
			},
		},
		&EmitStmt{Expr: &Ident{Name: "total"}},
	}}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "3" {
		t.Fatalf("got %v, want [\"3\"] (0+1+2)", out)
	}
}

func TestGenerateForInOverList(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&ForInStmt{
			Var:  "x",
			Expr: &ListLit{Elems: []Expr{&NumberLit{Value: 1}, &NumberLit{Value: 2}, &NumberLit{Value: 3}}},
			Body: []Stmt{&EmitStmt{Expr: &Ident{Name: "x"}}},
		},
	}}
	out := runProgram(t, prog)
	if len(out) != 3 || out[0] != "1" || out[1] != "2" || out[2] != "3" {
		t.Fatalf("got %v, want [\"1\" \"2\" \"3\"]", out)
	}
}

func TestGenerateFunctionCall(t *testing.T) {
	prog := &Program{
		Fns: []*FnDecl{
			{
				Name:   "add",
				Params: []Param{{Name: "a", Type: TNum}, {Name: "b", Type: TNum}},
				Body: []Stmt{
					&ReturnStmt{Expr: &BinaryExpr{Op: OpAdd, Left: &Ident{Name: "a"}, Right: &Ident{Name: "b"}}},
				},
			},
		},
		Body: []Stmt{
			&EmitStmt{Expr: &CallExpr{Callee: "add", Args: []Expr{&NumberLit{Value: 4}, &NumberLit{Value: 5}}}},
		},
	}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "9" {
		t.Fatalf("got %v, want [\"9\"]", out)
	}
}

func TestGenerateAgentMethodDescriptor(t *testing.T) {
	prog := &Program{
		Agents: []*AgentDecl{
			{
				Name:  "Greeter",
				Model: "gpt",
				Memory: []MemoryFieldDecl{
					{Name: "name", Type: TStr, Default: str("world")},
				},
				Methods: []*FnDecl{
					{Name: "greet", Body: []Stmt{
						&ReturnStmt{Expr: &FieldExpr{Field: "name"}},
					}},
				},
			},
		},
		Body: []Stmt{&EmitStmt{Expr: str("done")}},
	}
	module, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(module.Agents) != 1 || module.Agents[0].Name != "Greeter" {
		t.Fatalf("agent descriptor missing: %+v", module.Agents)
	}
	if _, ok := module.Agents[0].Methods["greet"]; !ok {
		t.Fatalf("greet method not registered: %+v", module.Agents[0].Methods)
	}
	if len(module.Agents[0].Memory) != 1 || module.Agents[0].Memory[0].Name != "name" {
		t.Fatalf("memory field missing: %+v", module.Agents[0].Memory)
	}
}

func TestGenerateRegisterCapExceeded(t *testing.T) {
	// Ten simultaneously-live locals need ten registers; a cap of 2 must
	// fail rather than silently truncate.
	var body []Stmt
	for i := 0; i < 10; i++ {
		body = append(body, &LetStmt{Name: string(rune('a' + i)), Expr: &NumberLit{Value: float64(i)}})
	}
	prog := &Program{Body: body}

	if _, err := GenerateWithRegisterCap(prog, 2); err == nil {
		t.Fatal("expected a register-cap error")
	}
}

func TestGenerateTryCatchRecoversFromThrow(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&TryStmt{
			Body:    []Stmt{&ThrowStmt{Expr: str("boom")}},
			ErrName: "e",
			Handler: []Stmt{&EmitStmt{Expr: str("recovered")}},
		},
	}}
	out := runProgram(t, prog)
	if len(out) != 1 || out[0] != "recovered" {
		t.Fatalf("got %v, want [\"recovered\"]", out)
	}
}

func TestGenerateAssertFailureThrows(t *testing.T) {
	prog := &Program{Body: []Stmt{
		&AssertStmt{Cond: &BoolLit{Value: false}, Msg: str("nope")},
	}}
	module, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	m := vm.New(module, host.NoOp{}, nil, config.Defaults())
	_, runErr := m.Run()
	if runErr == nil {
		t.Fatal("expected an uncaught AssertionError")
	}
	ev, ok := runErr.(*value.ErrorValue)
	if !ok || ev.Kind != value.ErrAssertion {
		t.Fatalf("got %v, want an AssertionError", runErr)
	}
}

// TestGenerateRecursiveFibonacciMatchesGolden exercises self
// recursion (the generator reserves every function-table slot before
// compiling any body, spec §4.2) and checks the emitted output buffer
// against a golden fixture the way litecode/vm/vm_test.go's harness
// diffs captured print output against expectation (SPEC_FULL.md §1.4).
func TestGenerateRecursiveFibonacciMatchesGolden(t *testing.T) {
	// fn fib(n) { if n < 2 { return n } return fib(n-1) + fib(n-2) }
	// emit fib(7)
	fib := &FnDecl{
		Name:   "fib",
		Params: []Param{{Name: "n", Type: TNum}},
		Body: []Stmt{
			&IfStmt{
				Cond: &BinaryExpr{Op: OpLt, Left: &Ident{Name: "n"}, Right: &NumberLit{Value: 2}},
				Then: []Stmt{&ReturnStmt{Expr: &Ident{Name: "n"}}},
			},
			&ReturnStmt{Expr: &BinaryExpr{
				Op: OpAdd,
				Left: &CallExpr{Callee: "fib", Args: []Expr{
					&BinaryExpr{Op: OpSub, Left: &Ident{Name: "n"}, Right: &NumberLit{Value: 1}},
				}},
				Right: &CallExpr{Callee: "fib", Args: []Expr{
					&BinaryExpr{Op: OpSub, Left: &Ident{Name: "n"}, Right: &NumberLit{Value: 2}},
				}},
			}},
		},
	}
	prog := &Program{
		Fns: []*FnDecl{fib},
		Body: []Stmt{
			&EmitStmt{Expr: &CallExpr{Callee: "fib", Args: []Expr{&NumberLit{Value: 7}}}},
		},
	}
	out := runProgram(t, prog)

	data, err := os.ReadFile("../testdata/fibonacci.json")
	if err != nil {
		t.Fatalf("cannot read golden fixture: %v", err)
	}
	var golden struct {
		Output []string `json:"output"`
	}
	if err := json.Unmarshal(data, &golden); err != nil {
		t.Fatalf("cannot parse golden fixture: %v", err)
	}
	if !reflect.DeepEqual(out, golden.Output) {
		t.Errorf("got %v, want %v (golden testdata/fibonacci.json)", out, golden.Output)
	}
}
