package value

import "testing"

func TestListPushGetSet(t *testing.T) {
	l := NewList(Num(1), Num(2))
	l.Push(Num(3))
	if l.Len() != 3 {
		t.Fatalf("got len %d, want 3", l.Len())
	}
	if v, ok := l.Get(2); !ok {
		t.Fatal("expected index 2 to be present")
	} else if n, _ := v.AsNum(); n != 3 {
		t.Errorf("got %v, want 3", n)
	}
	if !l.Set(0, Num(10)) {
		t.Fatal("expected Set(0, ...) to succeed")
	}
	v, _ := l.Get(0)
	if n, _ := v.AsNum(); n != 10 {
		t.Errorf("got %v, want 10", n)
	}
}

func TestListOutOfRange(t *testing.T) {
	l := NewList(Num(1))
	if _, ok := l.Get(5); ok {
		t.Error("expected Get out of range to fail")
	}
	if l.Set(5, Num(1)) {
		t.Error("expected Set out of range to fail")
	}
}

func TestNewListCopiesInput(t *testing.T) {
	src := []Value{Num(1), Num(2)}
	l := NewList(src...)
	src[0] = Num(99)
	if v, _ := l.Get(0); v.n != 1 {
		t.Error("NewList should copy its input, not alias it")
	}
}
