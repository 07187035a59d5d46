package bytecode

import (
	"bytes"
	"testing"
)

func sampleModule() Module {
	pool := NewConstPool()
	one := pool.Num(1)
	name := pool.Str("bob")
	return Module{
		Constants: pool.Seal(),
		Functions: []Function{
			{
				Name:      "entry",
				NumParams: 0,
				NumRegs:   2,
				Code: []Instruction{
					{Op: OpLoadConst, A: 0, Bx: uint16(one)},
					{Op: OpEmit, A: 0},
					{Op: OpReturn, A: 0},
				},
			},
		},
		Agents: []AgentDescriptor{
			{
				Name:  "Greeter",
				Model: "gpt",
				Memory: []MemoryField{
					{Name: "name", Type: TypeStr, DefaultConst: name},
				},
				Methods:     map[string]int{"greet": 0},
				MethodOrder: []string{"greet"},
			},
		},
		Tools: []ToolDescriptor{
			{Name: "lookup", Params: []Param{{Name: "q", Type: TypeStr, DefaultConst: -1}}, Returns: TypeStr},
		},
		Entry: 0,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleModule()
	enc, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(got.Constants) != len(m.Constants) {
		t.Fatalf("got %d constants, want %d", len(got.Constants), len(m.Constants))
	}
	if len(got.Functions) != 1 || len(got.Functions[0].Code) != 3 {
		t.Fatalf("function/instruction count mismatch: %+v", got.Functions)
	}
	if got.Functions[0].Code[0] != m.Functions[0].Code[0] {
		t.Errorf("instruction 0 mismatch: got %+v, want %+v", got.Functions[0].Code[0], m.Functions[0].Code[0])
	}
	if len(got.Agents) != 1 || got.Agents[0].Name != "Greeter" || got.Agents[0].Methods["greet"] != 0 {
		t.Errorf("agent descriptor mismatch: %+v", got.Agents)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "lookup" {
		t.Errorf("tool descriptor mismatch: %+v", got.Tools)
	}
	if got.Entry != m.Entry {
		t.Errorf("got entry %d, want %d", got.Entry, m.Entry)
	}
}

func TestWriteReadCompressedRoundTrip(t *testing.T) {
	m := sampleModule()
	var buf bytes.Buffer
	if err := WriteCompressed(&buf, m); err != nil {
		t.Fatalf("WriteCompressed failed: %v", err)
	}
	got, err := ReadCompressed(&buf)
	if err != nil {
		t.Fatalf("ReadCompressed failed: %v", err)
	}
	if len(got.Functions) != len(m.Functions) {
		t.Errorf("got %d functions, want %d", len(got.Functions), len(m.Functions))
	}
}

func TestHashIsDeterministic(t *testing.T) {
	m := sampleModule()
	h1, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Error("Hash should be deterministic across calls on the same module")
	}

	other := sampleModule()
	other.Entry = 0
	other.Functions[0].Name = "different"
	h3, err := other.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h3 {
		t.Error("Hash should differ when module content differs")
	}
}
