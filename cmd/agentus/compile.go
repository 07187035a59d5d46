package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/agentusdev/agentus/internal/bytecode"
)

// runCompile packages an already-encoded module for distribution: it
// gzip-compresses the module and prints its content hash, the way the
// teacher's exec.Compress and bundle.Bundle package already-compiled
// Luau bytecode into a bundle file rather than compiling source
// themselves (spec.md §1 treats lexing/parsing as an external
// collaborator; this repository never reads Agentus source text).
func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("compile: expected <in> <out>, got %d args", fs.NArg())
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", fs.Arg(0), err)
	}
	module, err := decodeModule(data)
	if err != nil {
		return fmt.Errorf("cannot decode %s: %w", fs.Arg(0), err)
	}

	hash, err := module.Hash()
	if err != nil {
		return fmt.Errorf("cannot hash module: %w", err)
	}

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", fs.Arg(1), err)
	}
	defer out.Close()

	if err := bytecode.WriteCompressed(out, module); err != nil {
		return fmt.Errorf("cannot write %s: %w", fs.Arg(1), err)
	}

	fmt.Printf("%s  %s\n", hex.EncodeToString(hash[:]), fs.Arg(1))
	return nil
}
