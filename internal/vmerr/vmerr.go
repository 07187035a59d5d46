// Package vmerr builds the Go-level error values the compiler and VM return
// for conditions that are not part of the language's own try/catch surface
// (malformed modules, register faults, compiler diagnostics). Grounded in
// the teacher's invalidArithmetic/invalidIndex/uncallableType constructor
// family in litecode/vm/vm.go: small named constructors over raw
// fmt.Errorf call sites, so error text stays consistent across the codebase.
package vmerr

import "fmt"

// RegisterOutOfRange reports a read/write outside a frame's declared
// register count (spec §3 invariants).
func RegisterOutOfRange(reg, count int) error {
	return fmt.Errorf("register %d out of range (frame has %d registers)", reg, count)
}

// TooManyRegisters reports a function exceeding its configured per-frame
// register cap (spec §4.2; SPEC_FULL.md §1.3 config.Config.MaxRegisters).
func TooManyRegisters(fn string) error {
	return fmt.Errorf("function %q exceeds the configured register cap", fn)
}

// JumpOverflow reports a jump offset that does not fit the instruction's
// immediate field (spec §4.2).
func JumpOverflow(offset int) error {
	return fmt.Errorf("jump offset %d overflows instruction immediate", offset)
}

// UndefinedName reports a name-resolution failure the code generator detects
// (spec §4.2): undefined variable, function, tool or agent.
func UndefinedName(kind, name string) error {
	return fmt.Errorf("undefined %s: %q", kind, name)
}

// MalformedModule reports a structurally invalid bytecode module.
func MalformedModule(reason string) error {
	return fmt.Errorf("malformed module: %s", reason)
}

// BadOpcode reports an instruction whose opcode is not in the instruction
// set (spec §4.1).
func BadOpcode(op uint8) error {
	return fmt.Errorf("unsupported opcode: %d", op)
}

// HostUnavailable reports a host boundary failure not attributable to the
// running program (spec §4.4).
func HostUnavailable(op string, err error) error {
	return fmt.Errorf("host %s failed: %w", op, err)
}

// ArgumentCount reports a call site whose argument count does not match
// the callee's declared parameter count (spec §4.2: arity is resolved at
// compile time; only tool calls may omit trailing defaulted parameters).
func ArgumentCount(name string, want, got int) error {
	return fmt.Errorf("%q expects %d argument(s), got %d", name, want, got)
}

// SelfOutsideMethod reports `self.field` used outside a method body.
func SelfOutsideMethod(field string) error {
	return fmt.Errorf("self.%s used outside a method body", field)
}

// NotConstant reports a default-value expression that the generator cannot
// fold to a constant pool entry (spec §4.2: tool and memory defaults are
// materialized at compile time).
func NotConstant(context string) error {
	return fmt.Errorf("%s must be a literal constant", context)
}

// Deadlock reports a scheduler with no ready or timeout-eligible agent left
// while the run has not otherwise completed (spec §5): every remaining
// agent is blocked on a mailbox or a wait target that will never resolve.
func Deadlock(liveAgents int) error {
	return fmt.Errorf("scheduler deadlock: %d agent(s) blocked with no runnable or timeout-eligible agent left", liveAgents)
}
