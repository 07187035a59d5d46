package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/agentusdev/agentus/host"
	"github.com/agentusdev/agentus/internal/bytecode"
	"github.com/agentusdev/agentus/internal/obs"
	"github.com/agentusdev/agentus/vm"
)

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	cf := registerConfigFlags(fs)
	hostName := fs.String("host", "echo", "host implementation: echo, noop")
	jsonLog := fs.Bool("json", false, "emit logs as JSON instead of text")
	debug := fs.Bool("debug", false, "set the logger to debug level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("exec: expected exactly one module file, got %d", fs.NArg())
	}

	cfg, err := cf.resolve()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("cannot read module: %w", err)
	}
	module, err := decodeModule(data)
	if err != nil {
		return fmt.Errorf("cannot decode module: %w", err)
	}

	h, err := selectHost(*hostName)
	if err != nil {
		return err
	}

	logger := obs.New(os.Stderr, *jsonLog, *debug)
	m := vm.New(module, h, logger, cfg)

	output, runErr := m.Run()
	for _, line := range output {
		fmt.Println(line)
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// decodeModule accepts either a raw bytecode.Encode payload or one
// wrapped with WriteCompressed, since agentus compile emits the latter
// but a directly encoded module is also valid input.
func decodeModule(data []byte) (bytecode.Module, error) {
	if isGzip(data) {
		return bytecode.ReadCompressed(bytes.NewReader(data))
	}
	return bytecode.Decode(data)
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func selectHost(name string) (host.Host, error) {
	switch name {
	case "echo":
		return host.Echo{}, nil
	case "noop":
		return host.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown host %q (want echo or noop)", name)
	}
}
