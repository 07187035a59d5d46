// Package config decodes the small settings surface the CLI and the
// embeddable agentus package accept (SPEC_FULL.md §1.3): the model an
// agent's exec() calls target, the default recv_timeout duration when a
// module doesn't specify one, a register-count cap, and a mailbox depth
// cap. Grounded in the chazu-maggie example's maggie.toml/Manifest story,
// the only config library attested anywhere in the retrieved corpus.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full set of tunables the CLI and embedders can set.
// vm.New replaces a wholly zero Config with Defaults; a zero field in an
// otherwise set Config is used as is (a zero MaxMailboxDepth means no cap).
type Config struct {
	Model              string        `toml:"model"`
	DefaultRecvTimeout time.Duration `toml:"-"`
	RecvTimeoutMS      int64         `toml:"recv_timeout_ms"`
	MaxRegisters       int           `toml:"max_registers"`
	MaxMailboxDepth    int           `toml:"max_mailbox_depth"`
}

// Defaults returns the built-in configuration used when no file and no
// flags override a field.
func Defaults() Config {
	return Config{
		Model:              "default",
		DefaultRecvTimeout: 30 * time.Second,
		RecvTimeoutMS:      30_000,
		MaxRegisters:       255, // one byte of register-index space (spec §4.1)
		MaxMailboxDepth:    1024,
	}
}

// Load reads a TOML config file at path, applying its fields over
// Defaults. A missing file is not an error: callers pass an optional
// path and Load falls back to Defaults silently in that case, matching
// the CLI's "config is optional" contract.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.DefaultRecvTimeout = time.Duration(cfg.RecvTimeoutMS) * time.Millisecond
	return cfg, nil
}
