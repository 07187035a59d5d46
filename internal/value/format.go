package value

import (
	"strconv"
	"strings"
)

// numToString renders a Num in the canonical textual form used by emit,
// string interpolation and tostring(): no trailing zeros where the value is
// exact, following the intent of the teacher's num2str (which hand-rolls a
// shortest round-tripping decimal encoder). Agentus leans on strconv's
// shortest round-tripping formatter instead of reimplementing Schubfach: the
// only number-formatting invariant the spec tests (round-trip through
// to_json/parse_json, determinism under a fixed host) holds either way.
func numToString(n float64) string {
	s := strconv.FormatFloat(n, 'g', -1, 64)
	// strconv emits "1e+10"/"1e-05"; canonicalize to the exponent form without
	// a leading zero-padding or explicit '+', matching typical script-language
	// conventions exercised by the string-interpolation tests.
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa, exp := s[:i], s[i+1:]
		neg := strings.HasPrefix(exp, "-")
		exp = strings.TrimLeft(strings.TrimPrefix(strings.TrimPrefix(exp, "+"), "-"), "0")
		if exp == "" {
			exp = "0"
		}
		if neg {
			exp = "-" + exp
		}
		s = mantissa + "e" + exp
	}
	return s
}

// ToDisplayString renders v the way emit/interpolation/tostring canonicalize
// values (spec §4.3 Emit): none -> "none", bool -> "true"/"false", Num ->
// numToString, Str verbatim, List/Map -> canonical JSON-like form.
func ToDisplayString(v Value) string {
	switch v.kind {
	case KNone:
		return "none"
	case KBool:
		b, _ := v.AsBool()
		if b {
			return "true"
		}
		return "false"
	case KNum:
		n, _ := v.AsNum()
		return numToString(n)
	case KStr:
		s, _ := v.AsStr()
		return s
	case KList, KMap:
		s, err := ToJSON(v)
		if err != nil {
			return "<cyclic>"
		}
		return s
	case KAgentHandle:
		h, _ := v.AsAgent()
		return "agent#" + strconv.FormatUint(uint64(h), 10)
	case KIterator:
		return "<iterator>"
	case KError:
		e, _ := v.AsError()
		return e.Error()
	default:
		return "<unknown>"
	}
}
