package value

import (
	"math"

	"golang.org/x/text/unicode/norm"
)

// Arithmetic, comparison and string operators over Value (spec §4.3).
// Grounded in the teacher's aAdd/aSub/.../jumpLt family in litecode/vm/vm.go,
// adapted to Agentus's value set (no Vector type) and to returning
// *ErrorValue instead of a Go error, since these throw into the language's
// try/catch rather than aborting the VM.

func typeErr(op string, a, b Value) *ErrorValue {
	return NewError(ErrType, "attempt to perform '"+op+"' on "+a.Kind().String()+" and "+b.Kind().String())
}

// Add implements the `+` operator.
func Add(a, b Value) (Value, *ErrorValue) {
	fa, ok1 := a.AsNum()
	fb, ok2 := b.AsNum()
	if ok1 && ok2 {
		return Num(fa + fb), nil
	}
	return None, typeErr("+", a, b)
}

// Sub implements the `-` operator.
func Sub(a, b Value) (Value, *ErrorValue) {
	fa, ok1 := a.AsNum()
	fb, ok2 := b.AsNum()
	if ok1 && ok2 {
		return Num(fa - fb), nil
	}
	return None, typeErr("-", a, b)
}

// Mul implements the `*` operator.
func Mul(a, b Value) (Value, *ErrorValue) {
	fa, ok1 := a.AsNum()
	fb, ok2 := b.AsNum()
	if ok1 && ok2 {
		return Num(fa * fb), nil
	}
	return None, typeErr("*", a, b)
}

// Div implements the `/` operator. Division by zero throws ArithmeticError
// (spec §4.3).
func Div(a, b Value) (Value, *ErrorValue) {
	fa, ok1 := a.AsNum()
	fb, ok2 := b.AsNum()
	if !ok1 || !ok2 {
		return None, typeErr("/", a, b)
	}
	if fb == 0 {
		return None, NewError(ErrArithmetic, "division by zero")
	}
	return Num(fa / fb), nil
}

// Mod implements the `%` operator.
func Mod(a, b Value) (Value, *ErrorValue) {
	fa, ok1 := a.AsNum()
	fb, ok2 := b.AsNum()
	if !ok1 || !ok2 {
		return None, typeErr("%", a, b)
	}
	if fb == 0 {
		return None, NewError(ErrArithmetic, "division by zero")
	}
	return Num(fa - fb*math.Floor(fa/fb)), nil
}

// Neg implements unary minus.
func Neg(a Value) (Value, *ErrorValue) {
	fa, ok := a.AsNum()
	if !ok {
		return None, NewError(ErrType, "attempt to negate "+a.Kind().String())
	}
	return Num(-fa), nil
}

// Not implements the `not` operator.
func Not(a Value) Value {
	return Bool(!a.Truthy())
}

// Concat implements `++`, which requires both operands to be strings (spec §4.3).
func Concat(a, b Value) (Value, *ErrorValue) {
	sa, ok1 := a.AsStr()
	sb, ok2 := b.AsStr()
	if !ok1 || !ok2 {
		return None, NewError(ErrType, "'++' requires string operands, got "+a.Kind().String()+" and "+b.Kind().String())
	}
	return Str(sa + sb), nil
}

// Equal implements `==`/`!=`-style structural equality for value comparisons
// used by control flow; list/map equality is by reference, matching the
// teacher's pointer-identity comparison for Table.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KNone:
		return true
	case KBool:
		return a.b == b.b
	case KNum:
		return a.n == b.n
	case KStr:
		return a.s == b.s
	default:
		return a.ref == b.ref
	}
}

// Compare implements `<`, `<=`, `>`, `>=` over Num and Str.
func Compare(op string, a, b Value) (bool, *ErrorValue) {
	if fa, ok1 := a.AsNum(); ok1 {
		if fb, ok2 := b.AsNum(); ok2 {
			return compareOrdered(op, fa < fb, fa <= fb, fa > fb, fa >= fb)
		}
	}
	if sa, ok1 := a.AsStr(); ok1 {
		if sb, ok2 := b.AsStr(); ok2 {
			return compareOrdered(op, sa < sb, sa <= sb, sa > sb, sa >= sb)
		}
	}
	return false, NewError(ErrType, "attempt to compare "+a.Kind().String()+" "+op+" "+b.Kind().String())
}

func compareOrdered(op string, lt, le, gt, ge bool) (bool, *ErrorValue) {
	switch op {
	case "<":
		return lt, nil
	case "<=":
		return le, nil
	case ">":
		return gt, nil
	case ">=":
		return ge, nil
	}
	return false, NewError(ErrType, "unknown comparison operator "+op)
}

// Len implements len(), polymorphic over list/map/string (spec §4.3), with
// string length counting Unicode codepoints after NFC normalization
// (SPEC_FULL.md §3 supplemented feature 1), grounded in the teacher's vm/std/utf8.go codepoint-
// vs-byte handling for Luau strings via golang.org/x/text/unicode/norm.
func Len(v Value) (int, *ErrorValue) {
	switch v.kind {
	case KStr:
		s, _ := v.AsStr()
		n := 0
		for range norm.NFC.String(s) {
			n++
		}
		return n, nil
	case KList:
		l, _ := v.AsList()
		return l.Len(), nil
	case KMap:
		m, _ := v.AsMap()
		return m.Len(), nil
	default:
		return 0, NewError(ErrType, "attempt to get length of a "+v.Kind().String()+" value")
	}
}
