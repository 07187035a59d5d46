package vm

import (
	"testing"

	"github.com/agentusdev/agentus/config"
	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/value"
)

// buildModule assembles a bytecode.Module by hand, the way codegen tests
// build an AST directly rather than going through a real front end (spec.md
// §1 treats parsing as an external collaborator's job).
func buildModule(entry bytecode.Function, extra ...bytecode.Function) bytecode.Module {
	fns := append(extra, entry)
	return bytecode.Module{
		Functions: fns,
		Entry:     len(fns) - 1,
	}
}

func TestEmitArithmetic(t *testing.T) {
	pool := bytecode.NewConstPool()
	two := pool.Num(2)
	three := pool.Num(3)

	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 3,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 0, Bx: uint16(two)},
			{Op: bytecode.OpLoadConst, A: 1, Bx: uint16(three)},
			{Op: bytecode.OpAdd, A: 2, B: 0, C: 1},
			{Op: bytecode.OpEmit, A: 2},
			{Op: bytecode.OpReturn, A: 2},
		},
	}
	module := buildModule(entry)
	module.Constants = pool.Seal()

	m := New(module, host.NoOp{}, nil, config.Defaults())
	out, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 || out[0] != "5" {
		t.Fatalf("got %v, want [\"5\"]", out)
	}
}

func TestDivisionByZeroUncaughtTerminatesWithError(t *testing.T) {
	pool := bytecode.NewConstPool()
	zero := pool.Num(0)
	one := pool.Num(1)

	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 3,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 0, Bx: uint16(one)},
			{Op: bytecode.OpLoadConst, A: 1, Bx: uint16(zero)},
			{Op: bytecode.OpDiv, A: 2, B: 0, C: 1},
			{Op: bytecode.OpReturn, A: 2},
		},
	}
	module := buildModule(entry)
	module.Constants = pool.Seal()

	m := New(module, host.NoOp{}, nil, config.Defaults())
	_, err := m.Run()
	if err == nil {
		t.Fatal("expected an uncaught ArithmeticError")
	}
	ev, ok := err.(*value.ErrorValue)
	if !ok || ev.Kind != value.ErrArithmetic {
		t.Fatalf("got %v, want an ArithmeticError", err)
	}
}

func TestTryCatchRecoversFromThrow(t *testing.T) {
	pool := bytecode.NewConstPool()
	msg := pool.Str("boom")
	recovered := pool.Str("recovered")

	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 3,
		Code: []bytecode.Instruction{
			// try { throw "boom" } catch e { emit "recovered" }
			{Op: bytecode.OpTryBegin, A: 1}, // handler catches into R1, jumps to pc index 5 on error
			{Op: bytecode.OpLoadConst, A: 0, Bx: uint16(msg)},
			{Op: bytecode.OpThrow, A: 0},
			{Op: bytecode.OpTryEnd},
			{Op: bytecode.OpReturn, A: 0},
		},
	}
	// TryBegin sits at pc 0; the handler must land on the catch block appended
	// below, which starts at the current code length (pc 5). OpTryBegin's
	// dispatch computes handlerPC = pc+1+SBx, so SBx = target-pc-1.
	tryBeginPC := 0
	targetPC := len(entry.Code)
	entry.Code[0].SBx = int32(targetPC - tryBeginPC - 1)
	entry.Code = append(entry.Code,
		bytecode.Instruction{Op: bytecode.OpLoadConst, A: 2, Bx: uint16(recovered)},
		bytecode.Instruction{Op: bytecode.OpEmit, A: 2},
		bytecode.Instruction{Op: bytecode.OpReturn, A: 2},
	)

	module := buildModule(entry)
	module.Constants = pool.Seal()

	m := New(module, host.NoOp{}, nil, config.Defaults())
	out, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 || out[0] != "recovered" {
		t.Fatalf("got %v, want [\"recovered\"]", out)
	}
}

func TestSendRecvWaitAcrossAgents(t *testing.T) {
	pool := bytecode.NewConstPool()
	greeting := pool.Str("hi")

	// Agent method: recv one value, emit it, return it as the exit value.
	echoMethod := bytecode.Function{
		Name:    "run",
		NumRegs: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpRecv, A: 0},
			{Op: bytecode.OpEmit, A: 0},
			{Op: bytecode.OpReturn, A: 0},
		},
	}

	// Entry: send "hi" to the agent handle passed in R0, wait for it to
	// finish, emit its exit value.
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 4,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 1, Bx: uint16(greeting)},
			{Op: bytecode.OpSend, A: 2, B: 0, C: 1},
			{Op: bytecode.OpWait, A: 3, B: 0},
			{Op: bytecode.OpEmit, A: 3},
			{Op: bytecode.OpReturn, A: 3},
		},
	}

	module := bytecode.Module{
		Constants: pool.Seal(),
		Functions: []bytecode.Function{echoMethod, entry},
		Agents: []bytecode.AgentDescriptor{
			{Name: "Echoer", Methods: map[string]int{"run": 0}, MethodOrder: []string{"run"}},
		},
		Entry: 1,
	}

	m := New(module, host.Echo{}, nil, config.Defaults())
	h, err := m.SpawnAndRun(0, "run")
	if err != nil {
		t.Fatalf("SpawnAndRun failed: %v", err)
	}

	out, runErr := m.Run(value.Agent(h))
	if runErr != nil {
		t.Fatalf("Run failed: %v", runErr)
	}
	if len(out) != 2 || out[0] != "hi" || out[1] != "hi" {
		t.Fatalf("got %v, want [\"hi\" \"hi\"]", out)
	}
}

func TestKillYieldsKilledSentinel(t *testing.T) {
	// Root runs first and kills the agent before its Recv executes, then waits.
	blockMethod := bytecode.Function{
		Name:    "run",
		NumRegs: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpRecv, A: 0},
			{Op: bytecode.OpReturn, A: 0},
		},
	}
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 3,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpKill, A: 1, B: 0},
			{Op: bytecode.OpWait, A: 2, B: 0},
			{Op: bytecode.OpEmit, A: 2},
			{Op: bytecode.OpReturn, A: 2},
		},
	}
	module := bytecode.Module{
		Functions: []bytecode.Function{blockMethod, entry},
		Agents: []bytecode.AgentDescriptor{
			{Name: "Blocker", Methods: map[string]int{"run": 0}, MethodOrder: []string{"run"}},
		},
		Entry: 1,
	}

	m := New(module, host.NoOp{}, nil, config.Defaults())
	h, err := m.SpawnAndRun(0, "run")
	if err != nil {
		t.Fatalf("SpawnAndRun failed: %v", err)
	}

	out, runErr := m.Run(value.Agent(h))
	if runErr != nil {
		t.Fatalf("Run failed: %v", runErr)
	}
	if len(out) != 1 || out[0] != "killed" {
		t.Fatalf("got %v, want [\"killed\"]", out)
	}
}

// TestPlainRecvNeverBlocks confirms recv() (as opposed to recv_timeout)
// resolves to none immediately on an empty mailbox rather than suspending
// (spec §5: "Recv. Non-blocking variant returns None on empty.").
func TestPlainRecvNeverBlocks(t *testing.T) {
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpRecv, A: 0},
			{Op: bytecode.OpReturn, A: 0},
		},
	}
	m := New(buildModule(entry), host.NoOp{}, nil, config.Defaults())
	_, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	root := m.Agents[rootHandle]
	if !root.ExitValue.IsNone() {
		t.Fatalf("got exit value %v, want none", root.ExitValue)
	}
}

// TestDeadlockWhenAgentsWaitOnEachOther exercises a genuine deadlock: two
// spawned agents each `wait` on the other, so neither can ever become
// ready again; the root itself waits on one of them, so it never
// terminates either, and the ready queue drains with nothing left to
// force (spec §5's deadlock case — unlike a bare `recv`, which spec §5
// requires to resolve to none rather than block, `wait` has no
// non-blocking form).
func TestDeadlockWhenAgentsWaitOnEachOther(t *testing.T) {
	waitOnPeer := bytecode.Function{
		Name:    "run",
		NumRegs: 2,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpWait, A: 1, B: 0},
			{Op: bytecode.OpReturn, A: 1},
		},
	}
	// Root waits on the agent passed in register 0 (hA), which is itself
	// mutually deadlocked with hB below.
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 2,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpWait, A: 1, B: 0},
			{Op: bytecode.OpReturn, A: 1},
		},
	}
	module := bytecode.Module{
		Functions: []bytecode.Function{waitOnPeer, entry},
		Agents: []bytecode.AgentDescriptor{
			{Name: "Waiter", Methods: map[string]int{"run": 0}, MethodOrder: []string{"run"}},
		},
		Entry: 1,
	}

	m := New(module, host.NoOp{}, nil, config.Defaults())
	hA := m.spawnAgent(0)
	hB := m.spawnAgent(0)

	start := func(h, peer value.AgentHandle) {
		inst := m.Agents[h]
		f := newFrame(0, module.Functions[0].NumRegs, 0, h)
		f.setReg(0, value.Agent(peer))
		inst.Frames = append(inst.Frames, f)
		inst.Status = StatusReady
		m.enqueueReady(h)
	}
	start(hA, hB)
	start(hB, hA)

	_, runErr := m.Run(value.Agent(hA))
	if runErr == nil {
		t.Fatal("expected a deadlock error")
	}
}

// TestExecSuspendsAndResolvesResult exercises Exec as a genuine suspension
// point (spec §3, §4.3): the emitted reply must reach the caller and
// execution must continue past the Exec instruction once it resolves.
func TestExecSuspendsAndResolvesResult(t *testing.T) {
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 2,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 0, Bx: 0},
			{Op: bytecode.OpExec, A: 1, B: 0},
			{Op: bytecode.OpEmit, A: 1},
			{Op: bytecode.OpReturn, A: 1},
		},
	}
	module := bytecode.Module{
		Constants: []bytecode.Constant{{Kind: bytecode.ConstStr, Str: "hello"}},
		Functions: []bytecode.Function{entry},
		Entry:     0,
	}
	m := New(module, host.Echo{}, nil, config.Defaults())
	out, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 || out[0] != "hello" {
		t.Fatalf("got %v, want [\"hello\"] (Echo host round trip)", out)
	}
}

// TestExecDoesNotBlockOtherReadyAgents proves a slow Exec is a real
// suspension point rather than a synchronous call: while one agent's Exec
// is outstanding, an unrelated already-ready agent still finishes and its
// emit lands in the trace before the Run call returns. Ordering is
// resolved by VM.resolveHostPendingOne only once the ready queue drains
// (spec §4.5), so the fast agent's own progress never waits on the slow
// agent's host round trip.
func TestExecDoesNotBlockOtherReadyAgents(t *testing.T) {
	fastRun := bytecode.Function{
		Name:    "run",
		NumRegs: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 0, Bx: 0},
			{Op: bytecode.OpEmit, A: 0},
			{Op: bytecode.OpReturn, A: 0},
		},
	}
	entry := bytecode.Function{
		Name:    "entry",
		NumRegs: 2,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, A: 0, Bx: 1},
			{Op: bytecode.OpExec, A: 1, B: 0},
			{Op: bytecode.OpEmit, A: 1},
			{Op: bytecode.OpReturn, A: 1},
		},
	}
	module := bytecode.Module{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstStr, Str: "fast"},
			{Kind: bytecode.ConstStr, Str: "slow"},
		},
		Functions: []bytecode.Function{fastRun, entry},
		Agents: []bytecode.AgentDescriptor{
			{Name: "Fast", Methods: map[string]int{"run": 0}, MethodOrder: []string{"run"}},
		},
		Entry: 1,
	}
	m := New(module, host.Echo{}, nil, config.Defaults())
	if _, err := m.SpawnAndRun(0, "run"); err != nil {
		t.Fatalf("SpawnAndRun failed: %v", err)
	}
	out, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 2 || out[0] != "fast" || out[1] != "slow" {
		t.Fatalf("got %v, want [\"fast\" \"slow\"]: the spawned agent must finish before root's pending Exec is resolved", out)
	}
}
