package main

import (
	"flag"
	"time"

	"github.com/agentusdev/agentus/config"
)

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// configFlags registers the flag overrides shared by exec (SPEC_FULL.md
// §1.3: "or overridden by flags"). resolve must be called after fs.Parse.
type configFlags struct {
	path            *string
	model           *string
	recvTimeoutMS   *int64
	maxRegisters    *int
	maxMailboxDepth *int
}

func registerConfigFlags(fs *flag.FlagSet) *configFlags {
	return &configFlags{
		path:            fs.String("config", "", "path to a TOML config file (optional)"),
		model:           fs.String("model", "", "override the configured model name"),
		recvTimeoutMS:   fs.Int64("recv-timeout-ms", 0, "override the default recv_timeout in milliseconds"),
		maxRegisters:    fs.Int("max-registers", 0, "override the per-frame register cap"),
		maxMailboxDepth: fs.Int("max-mailbox-depth", 0, "override the per-agent mailbox depth cap"),
	}
}

// resolve loads cf.path (if set) over config.Defaults, then layers any
// flags the caller actually passed on top.
func (cf *configFlags) resolve() (config.Config, error) {
	cfg, err := config.Load(*cf.path)
	if err != nil {
		return cfg, err
	}
	if *cf.model != "" {
		cfg.Model = *cf.model
	}
	if *cf.recvTimeoutMS != 0 {
		cfg.RecvTimeoutMS = *cf.recvTimeoutMS
		cfg.DefaultRecvTimeout = 0 // recomputed below
	}
	if cfg.DefaultRecvTimeout == 0 {
		cfg.DefaultRecvTimeout = msToDuration(cfg.RecvTimeoutMS)
	}
	if *cf.maxRegisters != 0 {
		cfg.MaxRegisters = *cf.maxRegisters
	}
	if *cf.maxMailboxDepth != 0 {
		cfg.MaxMailboxDepth = *cf.maxMailboxDepth
	}
	return cfg, nil
}
