// Package vm executes a compiled Agentus module (spec §3, §5, §9). It is
// the largest of the five components: the register machine, the
// exception unwinder and the cooperative multi-agent scheduler all live
// here.
//
// Grounded in the teacher's litecode/vm/vm.go step loop and per-Proto
// register frames, adapted to spec §9's explicit design note that agent
// coroutines are realized as CallFrame stacks the scheduler switches
// between directly, rather than native goroutines: "resumption restores
// by switching which stack the scheduler drives. No stack copying is
// required."
package vm

import (
	"log/slog"
	"sort"

	"github.com/agentusdev/agentus/config"
	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/value"
	"github.com/agentusdev/agentus/internal/vmerr"
)

// rootHandle identifies the pseudo-agent that owns the entry function's
// call frame. It is never observable as an Agent value in a running
// program (Spawn always allocates handles starting above it).
const rootHandle value.AgentHandle = 0

// VM holds one module's execution state: the agent table, the
// cooperative ready queue and the accumulated emit trace.
type VM struct {
	Module bytecode.Module
	Host   host.Host
	Logger *slog.Logger
	Config config.Config

	Agents     map[value.AgentHandle]*AgentInstance
	nextHandle value.AgentHandle

	ready       []value.AgentHandle
	hostPending []value.AgentHandle
	Output      []string
}

// New builds a VM ready to Run module. h is the sole channel to models
// and tools (spec §4.4); a nil logger falls back to slog.Default().
// cfg supplies the model fallback and
// resource caps of SPEC_FULL.md §1.3; the zero Config is replaced with
// config.Defaults().
func New(module bytecode.Module, h host.Host, logger *slog.Logger, cfg config.Config) *VM {
	if h == nil {
		h = host.NoOp{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == (config.Config{}) {
		cfg = config.Defaults()
	}
	return &VM{
		Module:     module,
		Host:       h,
		Logger:     logger,
		Config:     cfg,
		Agents:     make(map[value.AgentHandle]*AgentInstance),
		nextHandle: rootHandle + 1,
	}
}

func (m *VM) enqueueReady(h value.AgentHandle) {
	m.ready = append(m.ready, h)
}

// spawnAgent instantiates descIdx's memory defaults (spec §3) as a
// passive AgentInstance: it owns no frames of its own until a method is
// invoked against it, since ordinary `a.method()` calls push their frame
// onto whichever call stack is currently executing (spec §4.3), not onto
// the target's own stack.
func (m *VM) spawnAgent(descIdx int) value.AgentHandle {
	h := m.nextHandle
	m.nextHandle++

	inst := newAgentInstance(h, descIdx)
	desc := m.Module.Agents[descIdx]
	for _, mf := range desc.Memory {
		inst.Memory[mf.Name] = constToValue(m.Module.Constants[mf.DefaultConst])
	}
	m.Agents[h] = inst
	return h
}

// SpawnAndRun instantiates descIdx and gives it its own independently
// scheduled frame stack running the named method with args, returning
// its handle. This is the embedding-level entry point multi-agent
// programs use to start two or more agents running concurrently under
// the cooperative scheduler (spec §5's mailbox/wait examples): the
// language surface's `a.method()` call syntax is always a synchronous,
// same-stack call (spec §4.3), so genuinely independent agent execution
// is set up by the host embedding, the way a CLI or test driver launches
// each top-level participant of a multi-agent scenario.
func (m *VM) SpawnAndRun(descIdx int, method string, args ...value.Value) (value.AgentHandle, error) {
	h := m.spawnAgent(descIdx)
	inst := m.Agents[h]
	desc := m.Module.Agents[descIdx]

	fnIdx, ok := desc.Methods[method]
	if !ok {
		return h, vmerr.MalformedModule("no such method: " + method)
	}
	fn := m.Module.Functions[fnIdx]

	f := newFrame(fnIdx, fn.NumRegs, 0, h)
	for i, a := range args {
		if i >= fn.NumRegs {
			break
		}
		f.setReg(uint8(i), a)
	}
	inst.Frames = append(inst.Frames, f)
	inst.Status = StatusReady
	m.enqueueReady(h)
	return h, nil
}

// Run drives the entry function to completion under the cooperative
// scheduler (spec §5), returning the accumulated emit trace. The root
// pseudo-agent's exit error, if any, becomes Run's error. The root is
// scheduled first, ahead of any agent already started with SpawnAndRun.
func (m *VM) Run(args ...value.Value) ([]string, error) {
	entry := m.Module.Functions[m.Module.Entry]
	root := newAgentInstance(rootHandle, -1)
	rf := newFrame(m.Module.Entry, entry.NumRegs, 0, rootHandle)
	for i, a := range args {
		if i >= entry.NumRegs {
			break
		}
		rf.setReg(uint8(i), a)
	}
	root.Frames = append(root.Frames, rf)
	root.Status = StatusReady
	m.Agents[rootHandle] = root
	m.ready = append([]value.AgentHandle{rootHandle}, m.ready...)

	for {
		h, ok := m.nextReady()
		if !ok {
			// A pending Exec/TCall always resolves eventually, so it takes
			// priority over the clockless recv_timeout fallback: nothing is
			// truly deadlocked while a host round trip is still owed to
			// some agent (spec §4.3, §4.5).
			if woke := m.resolveHostPendingOne(); woke {
				continue
			}
			if woke := m.forceTimeout(); woke {
				continue
			}
			break
		}

		a := m.Agents[h]
		if a == nil || len(a.Frames) == 0 {
			continue
		}
		m.runUntilSuspend(a)
		m.settle(a)
		if a.Status == StatusSuspended && a.SuspendOn == suspendHostPending {
			m.hostPending = append(m.hostPending, h)
		}

		if h == rootHandle && a.Status == StatusTerminated {
			return m.Output, errFromExit(a)
		}
	}

	root = m.Agents[rootHandle]
	if root.Status != StatusTerminated {
		return m.Output, vmerr.Deadlock(len(m.Agents))
	}
	return m.Output, errFromExit(root)
}

func errFromExit(a *AgentInstance) error {
	if a.ExitErr != nil {
		return a.ExitErr
	}
	return nil
}

func (m *VM) nextReady() (value.AgentHandle, bool) {
	for len(m.ready) > 0 {
		h := m.ready[0]
		m.ready = m.ready[1:]
		a, ok := m.Agents[h]
		if !ok || a.Status != StatusReady {
			continue
		}
		return h, true
	}
	return 0, false
}

// settle reacts to the state runUntilSuspend left a in: waking any Wait
// suspensions parked on a terminated agent, or leaving a's own
// suspension in place for a future Send/Kill/timeout to resolve.
func (m *VM) settle(a *AgentInstance) {
	if a.Status != StatusTerminated {
		return
	}
	for _, wh := range a.Waiters {
		w := m.Agents[wh]
		if w == nil {
			continue
		}
		w.currentFrame().setReg(w.RecvDst, a.ExitValue)
		w.SuspendOn = suspendNone
		w.Status = StatusReady
		m.enqueueReady(wh)
	}
	a.Waiters = nil
}

// forceTimeout resolves the clockless recv_timeout design decision
// (spec §5 open question on timeout semantics, resolved in DESIGN.md):
// the VM never reads a clock, so a RecvTimeout only fires once every
// other ready agent has been run to a fixpoint and the mailbox is still
// empty. Called only once the ready queue is exhausted. When several
// agents are simultaneously timeout-eligible, the lowest handle always
// fires first: m.Agents is a Go map, and iterating it directly would
// make the choice (and the resulting emit trace) vary run to run,
// breaking spec §8's determinism guarantee.
func (m *VM) forceTimeout() bool {
	handles := make([]value.AgentHandle, 0, len(m.Agents))
	for h, a := range m.Agents {
		if a.Status == StatusSuspended && a.SuspendOn == suspendMailbox && a.RecvCanTimeout {
			handles = append(handles, h)
		}
	}
	if len(handles) == 0 {
		return false
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	h := handles[0]
	a := m.Agents[h]
	a.SuspendOn = suspendNone
	a.RecvCanTimeout = false
	m.raise(a, value.NewError(value.ErrTimeout, "recv_timeout elapsed"))
	if a.Status != StatusTerminated {
		a.Status = StatusReady
	}
	m.enqueueReady(h)
	m.settle(a)
	return true
}

// resolveHostPendingOne runs the oldest still-live host-pending request to
// completion (spec §3, §4.3, §4.5). It is only called once the ready queue
// is drained, so every agent that could make unrelated progress this round
// already has: a slow Exec or TCall never keeps another ready agent
// waiting. FIFO order over m.hostPending, not m.Agents iteration order,
// keeps this deterministic (spec §8) regardless of suspension order ties.
// An entry whose agent was killed (or otherwise no longer suspended on
// this request) before it was reached is dropped without ever invoking
// the host, satisfying spec §4.5's kill-cancels-in-flight-host-op rule.
func (m *VM) resolveHostPendingOne() bool {
	for len(m.hostPending) > 0 {
		h := m.hostPending[0]
		m.hostPending = m.hostPending[1:]
		a := m.Agents[h]
		if a == nil || a.Status != StatusSuspended || a.SuspendOn != suspendHostPending || a.Pending == nil {
			continue
		}
		p := a.Pending
		a.Pending = nil
		v, err := p.call()
		a.SuspendOn = suspendNone
		if err != nil {
			m.raise(a, err)
		} else {
			f := a.currentFrame()
			f.setReg(p.resultReg, v)
			f.PC = p.resumePC
		}
		if a.Status != StatusTerminated {
			a.Status = StatusReady
		}
		m.enqueueReady(h)
		m.settle(a)
		return true
	}
	return false
}

func (m *VM) runUntilSuspend(a *AgentInstance) {
	a.Status = StatusRunning
	for {
		if len(a.Frames) == 0 {
			a.Status = StatusTerminated
			return
		}
		if m.step(a) {
			a.Status = StatusSuspended
			return
		}
		if a.Status == StatusTerminated {
			return
		}
	}
}

func constToValue(c bytecode.Constant) value.Value {
	switch c.Kind {
	case bytecode.ConstNone:
		return value.None
	case bytecode.ConstBool:
		return value.Bool(c.Bool)
	case bytecode.ConstNum:
		return value.Num(c.Num)
	case bytecode.ConstStr:
		return value.Str(c.Str)
	default:
		return value.None
	}
}
