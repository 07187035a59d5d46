// Command agentus is the minimal CLI driver around the compiler and VM
// (spec.md §1 names the CLI an external collaborator; SPEC_FULL.md §4
// specifies this package as "the minimal glue needed to exercise the
// core"). It has two subcommands: compile packages a raw encoded module
// into its on-disk compressed form, and exec loads a module and runs it
// to completion under the cooperative scheduler.
//
// Grounded in the teacher's flag-free, subcommand-by-first-arg style
// (litecode/main.go has no CLI at all, being an HTTP server; chazu-maggie's
// cmd/mag dispatches subcommands by inspecting os.Args[1] before calling
// flag.Parse on the remainder) — no CLI framework (cobra, urfave/cli, kong)
// appears anywhere in the retrieved corpus, so this uses the standard
// library flag package throughout.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "exec":
		err = runExec(os.Args[2:])
	case "compile":
		err = runCompile(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "agentus: unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "agentus: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agentus <exec|compile> [flags] <module-file>")
	fmt.Fprintln(os.Stderr, "  agentus exec module.agtb        run a compiled module")
	fmt.Fprintln(os.Stderr, "  agentus compile in.agtb out.agtc  gzip-package a module for distribution")
}
