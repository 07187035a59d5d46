package main

import (
	"bytes"
	"testing"

	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/bytecode"
)

func sampleModule() bytecode.Module {
	pool := bytecode.NewConstPool()
	one := pool.Num(1)
	return bytecode.Module{
		Constants: pool.Seal(),
		Functions: []bytecode.Function{
			{
				Name:    "entry",
				NumRegs: 1,
				Code: []bytecode.Instruction{
					{Op: bytecode.OpLoadConst, A: 0, Bx: uint16(one)},
					{Op: bytecode.OpReturn, A: 0},
				},
			},
		},
		Entry: 0,
	}
}

func TestIsGzip(t *testing.T) {
	if isGzip([]byte{0x1f, 0x8b, 0x00}) != true {
		t.Error("expected gzip magic to be detected")
	}
	if isGzip([]byte{0x00, 0x01}) {
		t.Error("expected non-gzip data to not be detected as gzip")
	}
	if isGzip(nil) {
		t.Error("expected empty data to not be detected as gzip")
	}
}

func TestDecodeModuleRaw(t *testing.T) {
	m := sampleModule()
	enc, err := bytecode.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := decodeModule(enc)
	if err != nil {
		t.Fatalf("decodeModule failed: %v", err)
	}
	if len(got.Functions) != 1 {
		t.Errorf("got %d functions, want 1", len(got.Functions))
	}
}

func TestDecodeModuleCompressed(t *testing.T) {
	m := sampleModule()
	var buf bytes.Buffer
	if err := bytecode.WriteCompressed(&buf, m); err != nil {
		t.Fatalf("WriteCompressed failed: %v", err)
	}
	got, err := decodeModule(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeModule failed: %v", err)
	}
	if len(got.Functions) != 1 {
		t.Errorf("got %d functions, want 1", len(got.Functions))
	}
}

func TestSelectHost(t *testing.T) {
	if _, err := selectHost("echo"); err != nil {
		t.Errorf("selectHost(echo) failed: %v", err)
	}
	if _, err := selectHost("noop"); err != nil {
		t.Errorf("selectHost(noop) failed: %v", err)
	}
	if _, err := selectHost("bogus"); err == nil {
		t.Error("expected selectHost(bogus) to error")
	}
}

func TestSelectHostReturnsDistinctImplementations(t *testing.T) {
	echo, _ := selectHost("echo")
	if _, ok := echo.(host.Echo); !ok {
		t.Errorf("got %T, want host.Echo", echo)
	}
	noop, _ := selectHost("noop")
	if _, ok := noop.(host.NoOp); !ok {
		t.Errorf("got %T, want host.NoOp", noop)
	}
}
