package value

import "testing"

func TestToDisplayString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{None, "none"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Num(3), "3"},
		{Num(3.5), "3.5"},
		{Str("hi"), "hi"},
		{Agent(AgentHandle(7)), "agent#7"},
		{Err(NewError(ErrType, "bad")), "TypeError: bad"},
	}
	for _, tc := range tests {
		if got := ToDisplayString(tc.v); got != tc.want {
			t.Errorf("ToDisplayString(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestToDisplayStringList(t *testing.T) {
	l := ListVal(NewList(Num(1), Str("a")))
	if got, want := ToDisplayString(l), `[1,"a"]`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNumToStringExponentForm(t *testing.T) {
	tests := []struct {
		n    float64
		want string
	}{
		{1e20, "1e20"},
		{1e-20, "1e-20"},
	}
	for _, tc := range tests {
		if got := ToDisplayString(Num(tc.n)); got != tc.want {
			t.Errorf("ToDisplayString(%v) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
