package main

import (
	"flag"
	"testing"
	"time"
)

func TestConfigFlagsResolveDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg, err := cf.resolve()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.Model != "default" {
		t.Errorf("got model %q, want %q", cfg.Model, "default")
	}
}

func TestConfigFlagsResolveOverrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	if err := fs.Parse([]string{"-model", "claude", "-recv-timeout-ms", "2000", "-max-registers", "16"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg, err := cf.resolve()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.Model != "claude" {
		t.Errorf("got model %q, want %q", cfg.Model, "claude")
	}
	if cfg.MaxRegisters != 16 {
		t.Errorf("got MaxRegisters %d, want 16", cfg.MaxRegisters)
	}
	if cfg.DefaultRecvTimeout != 2*time.Second {
		t.Errorf("got DefaultRecvTimeout %v, want 2s", cfg.DefaultRecvTimeout)
	}
}

func TestMsToDuration(t *testing.T) {
	if got := msToDuration(1500); got != 1500*time.Millisecond {
		t.Errorf("got %v, want 1500ms", got)
	}
}
