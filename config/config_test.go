package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Model != "default" {
		t.Errorf("got model %q, want %q", cfg.Model, "default")
	}
	if cfg.MaxRegisters != 255 {
		t.Errorf("got MaxRegisters %d, want 255", cfg.MaxRegisters)
	}
	if cfg.DefaultRecvTimeout != 30*time.Second {
		t.Errorf("got DefaultRecvTimeout %v, want 30s", cfg.DefaultRecvTimeout)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("got %+v, want %+v", cfg, Defaults())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("testdata/does-not-exist.toml")
	if err != nil {
		t.Fatalf("Load should not error on a missing file, got: %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("got %+v, want %+v", cfg, Defaults())
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load("testdata/agentus.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gpt-4.1" {
		t.Errorf("got model %q, want %q", cfg.Model, "gpt-4.1")
	}
	if cfg.MaxRegisters != 128 {
		t.Errorf("got MaxRegisters %d, want 128", cfg.MaxRegisters)
	}
	if cfg.MaxMailboxDepth != 64 {
		t.Errorf("got MaxMailboxDepth %d, want 64", cfg.MaxMailboxDepth)
	}
	if cfg.DefaultRecvTimeout != 5*time.Second {
		t.Errorf("got DefaultRecvTimeout %v, want 5s", cfg.DefaultRecvTimeout)
	}
}

func TestLoadUnparsableFileErrors(t *testing.T) {
	if _, err := Load("testdata/malformed.toml"); err == nil {
		t.Fatal("expected a parse error for malformed TOML")
	}
}
