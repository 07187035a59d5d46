// Package obs sets up structured logging for the compiler, VM and CLI
// (SPEC_FULL.md §1.1). The teacher's packages log ad hoc via fmt.Println;
// this generalizes that to leveled, structured output via log/slog without
// introducing a third-party logging stack no example repo in the corpus
// actually uses.
package obs

import (
	"io"
	"log/slog"
	"os"
)

// New builds a logger. json selects slog.NewJSONHandler (for machine-
// consumable CLI output); otherwise a human-readable text handler is used.
// debug enables LevelDebug; the VM itself emits no log records at any level.
func New(w io.Writer, json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Default returns a text logger writing to stderr at Info level, the
// fallback used by embedders that do not configure one explicitly.
func Default() *slog.Logger {
	return New(os.Stderr, false, false)
}
