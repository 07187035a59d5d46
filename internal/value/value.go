// Package value implements the Agentus runtime value universe (spec §3).
package value

import (
	"fmt"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KNone Kind = iota
	KBool
	KNum
	KStr
	KList
	KMap
	KAgentHandle
	KIterator
	KError
)

func (k Kind) String() string {
	switch k {
	case KNone:
		return "none"
	case KBool:
		return "bool"
	case KNum:
		return "num"
	case KStr:
		return "str"
	case KList:
		return "list"
	case KMap:
		return "map"
	case KAgentHandle:
		return "agent"
	case KIterator:
		return "iterator"
	case KError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is the runtime universe of Agentus values. It is deliberately a
// small closed set (spec §3): None, Bool, Num, Str, List, Map, AgentHandle,
// Iterator, Error. Values are acyclic by construction except where a host
// program explicitly constructs a self-referential List/Map (ToJSON, which
// backs to_json, tracks the containers it is inside and rejects a cycle).
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	ref  any // *List, *Map, AgentHandle, *Iterator, *ErrorValue
}

// None is the canonical none value.
var None = Value{kind: KNone}

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KBool, b: b} }

// Num constructs a Num value.
func Num(n float64) Value { return Value{kind: KNum, n: n} }

// Str constructs a Str value.
func Str(s string) Value { return Value{kind: KStr, s: s} }

// Agent constructs an AgentHandle value.
func Agent(h AgentHandle) Value { return Value{kind: KAgentHandle, ref: h} }

// Err constructs an Error value.
func Err(e *ErrorValue) Value { return Value{kind: KError, ref: e} }

// ListVal wraps a *List as a Value.
func ListVal(l *List) Value { return Value{kind: KList, ref: l} }

// MapVal wraps a *Map as a Value.
func MapVal(m *Map) Value { return Value{kind: KMap, ref: m} }

// IterVal wraps an *Iterator as a Value.
func IterVal(it *Iterator) Value { return Value{kind: KIterator, ref: it} }

// Kind returns the dynamic type tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether v is the none value.
func (v Value) IsNone() bool { return v.kind == KNone }

// Truthy implements Agentus truthiness: only none and false are falsy.
func (v Value) Truthy() bool {
	return !(v.kind == KNone || (v.kind == KBool && !v.b))
}

// AsBool returns the underlying bool and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KBool }

// AsNum returns the underlying float64 and whether v is a Num.
func (v Value) AsNum() (float64, bool) { return v.n, v.kind == KNum }

// AsStr returns the underlying string and whether v is a Str.
func (v Value) AsStr() (string, bool) { return v.s, v.kind == KStr }

// AsList returns the underlying *List and whether v is a List.
func (v Value) AsList() (*List, bool) {
	l, ok := v.ref.(*List)
	return l, ok && v.kind == KList
}

// AsMap returns the underlying *Map and whether v is a Map.
func (v Value) AsMap() (*Map, bool) {
	m, ok := v.ref.(*Map)
	return m, ok && v.kind == KMap
}

// AsAgent returns the underlying AgentHandle and whether v is an AgentHandle.
func (v Value) AsAgent() (AgentHandle, bool) {
	h, ok := v.ref.(AgentHandle)
	return h, ok && v.kind == KAgentHandle
}

// AsIterator returns the underlying *Iterator and whether v is an Iterator.
func (v Value) AsIterator() (*Iterator, bool) {
	it, ok := v.ref.(*Iterator)
	return it, ok && v.kind == KIterator
}

// AsError returns the underlying *ErrorValue and whether v is an Error.
func (v Value) AsError() (*ErrorValue, bool) {
	e, ok := v.ref.(*ErrorValue)
	return e, ok && v.kind == KError
}

// AgentHandle is an opaque identifier of a live agent instance (spec §3).
// Handles never alias across termination within one VM run.
type AgentHandle uint64

// ErrorValue is a caught exception: a kind tag plus a message (spec §3, §7).
type ErrorValue struct {
	Kind    string
	Message string
}

func (e *ErrorValue) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Error kind tags, spec §7.
const (
	ErrType        = "TypeError"
	ErrArithmetic  = "ArithmeticError"
	ErrIndex       = "IndexError"
	ErrKey         = "KeyError"
	ErrAssertion   = "AssertionError"
	ErrJSON        = "JsonError"
	ErrHost        = "HostError"
	ErrTimeout     = "TimeoutError"
	ErrUndefined   = "UndefinedError"
	ErrUser        = "UserError"
)

// NewError builds an ErrorValue with the given kind tag and message.
func NewError(kind, msg string) *ErrorValue {
	return &ErrorValue{Kind: kind, Message: msg}
}
