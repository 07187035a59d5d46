package value

import "golang.org/x/text/unicode/norm"

// Iterator is an opaque cursor over a List, Map or Str (spec §3, plus the
// string-iteration extension, SPEC_FULL.md §3 supplemented feature 1).
// Iteration over list/map is structural: the spec's open question (iii) is
// resolved in favour of snapshotting the container's size at
// iterator-creation time and rejecting further steps if it has shrunk or
// grown, so a push or remove during the loop is an error; replacing an
// element in place leaves the length unchanged and is not detected (see
// internal/value/iterator_test.go). String iteration has no mutation
// hazard since Str values are immutable; it walks NFC-normalized runes.
type Iterator struct {
	list     *List
	mp       *Map
	runes    []rune
	pos      int
	startLen int
}

// NewListIterator returns an Iterator over l's values in order.
func NewListIterator(l *List) *Iterator {
	return &Iterator{list: l, startLen: l.Len()}
}

// NewMapIterator returns an Iterator over m's keys in insertion order.
func NewMapIterator(m *Map) *Iterator {
	return &Iterator{mp: m, startLen: m.Len()}
}

// NewStringIterator returns an Iterator over s's Unicode codepoints, each
// yielded as a one-character Str, after NFC normalization (grounded in
// the teacher's vm/std/utf8.go codepoint-vs-byte handling).
func NewStringIterator(s string) *Iterator {
	return &Iterator{runes: []rune(norm.NFC.String(s))}
}

// ErrIteratorMutated is returned by Next when the underlying container's
// size changed since the iterator was created.
var ErrIteratorMutated = NewError(ErrType, "container modified during iteration")

// Next advances the cursor, returning the next value (list) or key (map) as
// a Value, whether a value was produced, and an error if the container was
// mutated during iteration.
func (it *Iterator) Next() (Value, bool, *ErrorValue) {
	switch {
	case it.list != nil:
		if it.list.Len() != it.startLen {
			return None, false, ErrIteratorMutated
		}
		v, ok := it.list.Get(it.pos)
		if !ok {
			return None, false, nil
		}
		it.pos++
		return v, true, nil
	case it.mp != nil:
		if it.mp.Len() != it.startLen {
			return None, false, ErrIteratorMutated
		}
		keys := it.mp.Keys()
		if it.pos >= len(keys) {
			return None, false, nil
		}
		k := keys[it.pos]
		it.pos++
		return Str(k), true, nil
	case it.runes != nil:
		if it.pos >= len(it.runes) {
			return None, false, nil
		}
		r := it.runes[it.pos]
		it.pos++
		return Str(string(r)), true, nil
	default:
		return None, false, nil
	}
}
