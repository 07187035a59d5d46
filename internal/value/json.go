package value

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ToJSON serializes v structurally (spec §4.3 JSON built-ins). It is total
// over the serializable subset of the value universe and errors on
// AgentHandle/Iterator, and on cyclic List/Map structures (spec §9: to_json
// "must detect cycles and throw rather than loop").
func ToJSON(v Value) (string, error) {
	var b strings.Builder
	seen := make(map[any]bool)
	if err := writeJSON(&b, v, seen); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeJSON(b *strings.Builder, v Value, seen map[any]bool) error {
	switch v.kind {
	case KNone:
		b.WriteString("null")
	case KBool:
		bo, _ := v.AsBool()
		if bo {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KNum:
		n, _ := v.AsNum()
		enc, err := json.Marshal(n)
		if err != nil {
			return NewError(ErrJSON, err.Error())
		}
		b.Write(enc)
	case KStr:
		s, _ := v.AsStr()
		enc, _ := json.Marshal(s)
		b.Write(enc)
	case KList:
		l, _ := v.AsList()
		if seen[l] {
			return NewError(ErrJSON, "cannot serialize a cyclic list")
		}
		seen[l] = true
		defer delete(seen, l)

		b.WriteByte('[')
		for i, item := range l.Items() {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeJSON(b, item, seen); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case KMap:
		m, _ := v.AsMap()
		if seen[m] {
			return NewError(ErrJSON, "cannot serialize a cyclic map")
		}
		seen[m] = true
		defer delete(seen, m)

		b.WriteByte('{')
		for i, k := range m.Keys() {
			if i > 0 {
				b.WriteByte(',')
			}
			kenc, _ := json.Marshal(k)
			b.Write(kenc)
			b.WriteByte(':')
			val, _ := m.Get(k)
			if err := writeJSON(b, val, seen); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case KAgentHandle:
		return NewError(ErrJSON, "cannot serialize an agent handle")
	case KIterator:
		return NewError(ErrJSON, "cannot serialize an iterator")
	case KError:
		return NewError(ErrJSON, "cannot serialize an error value")
	default:
		return NewError(ErrJSON, "cannot serialize unknown value")
	}
	return nil
}

// ParseJSON decodes a JSON document into the Value universe, throwing
// JsonError on malformed input (spec §4.3).
func ParseJSON(s string) (Value, *ErrorValue) {
	var raw any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return None, NewError(ErrJSON, err.Error())
	}
	return fromAny(raw), nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return None
	case bool:
		return Bool(t)
	case json.Number:
		f, _ := strconv.ParseFloat(t.String(), 64)
		return Num(f)
	case string:
		return Str(t)
	case []any:
		l := NewList()
		for _, item := range t {
			l.Push(fromAny(item))
		}
		return ListVal(l)
	case map[string]any:
		m := NewMap()
		// encoding/json decodes an object into a Go map, which keeps no key
		// order and iterates randomly, so this sorts the keys into byte order
		// to be deterministic. True source-order preservation would
		// require a streaming token decoder; not required by any spec
		// invariant (only round-trip up to map key ordering is tested).
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, fromAny(t[k]))
		}
		return MapVal(m)
	default:
		return None
	}
}
