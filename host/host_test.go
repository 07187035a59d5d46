package host

import "testing"

func TestEchoExecReturnsPromptVerbatim(t *testing.T) {
	req := ExecRequest{Model: "gpt", UserPrompt: "hello there"}
	got, err := Echo{}.Exec(req)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got != "hello there" {
		t.Errorf("got %q, want %q", got, "hello there")
	}
}

func TestEchoToolCallSortsArgsByKey(t *testing.T) {
	req := ToolCallRequest{
		ToolName:  "lookup",
		NamedArgs: map[string]any{"z": 1, "a": 2, "m": 3},
	}
	got, err := Echo{}.ToolCall(req)
	if err != nil {
		t.Fatalf("ToolCall failed: %v", err)
	}
	want := "lookup(a=2, m=3, z=1)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEchoToolCallNoArgs(t *testing.T) {
	got, err := Echo{}.ToolCall(ToolCallRequest{ToolName: "ping"})
	if err != nil {
		t.Fatalf("ToolCall failed: %v", err)
	}
	if got != "ping()" {
		t.Errorf("got %q, want %q", got, "ping()")
	}
}

func TestNoOpExecFails(t *testing.T) {
	if _, err := (NoOp{}).Exec(ExecRequest{Model: "gpt"}); err == nil {
		t.Fatal("expected NoOp.Exec to error")
	}
}

func TestNoOpToolCallFails(t *testing.T) {
	if _, err := (NoOp{}).ToolCall(ToolCallRequest{ToolName: "lookup"}); err == nil {
		t.Fatal("expected NoOp.ToolCall to error")
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == b {
		t.Error("expected two distinct request IDs")
	}
}
