// Package config defines the command-line surface of the sentryd binary
// (spec.md §6, "Command-line surface of the enclosing tool"). None of
// this is part of the core pipeline's contract — the core only needs a
// PID and a "start execing" signal — but cmd/sentryd needs somewhere to
// parse these flags into, and the anchoring/inclusion rule in
// internal/collector.Assembler is driven directly by one of them.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds every flag the CLI accepts.
type Config struct {
	// Command is the target program and its arguments.
	Command []string
	// User runs the target as this user (username or uid), empty means
	// "run as the current user".
	User string
	// Stdin, Stdout, Stderr redirect the target's standard streams to
	// files; empty means inherit from sentryd itself.
	Stdin, Stdout, Stderr string
	// JSONPath, if set, receives one JSON line per assembled TraceEvent.
	JSONPath string
	// IncludeInitialExecve disables anchor-based trimming of the
	// launching shell's own syscalls (spec.md §4.2).
	IncludeInitialExecve bool
	// ObjectPath is the compiled eBPF object (tracepoints.o) to load.
	ObjectPath string
	// RingSize overrides the default channel depth between the ring
	// buffer readers and the assembler.
	RingSize int
}

// BindFlags registers every flag above on fs and returns the Config they
// populate once fs.Parse has run.
func BindFlags(fs *pflag.FlagSet) *Config {
	c := &Config{}
	fs.StringVar(&c.User, "user", "", "run the target as this user")
	fs.StringVar(&c.Stdin, "stdin", "", "file to use as the target's stdin")
	fs.StringVar(&c.Stdout, "stdout", "", "file to use as the target's stdout")
	fs.StringVar(&c.Stderr, "stderr", "", "file to use as the target's stderr")
	fs.StringVar(&c.JSONPath, "json", "", "write one JSON line per traced syscall to this path")
	fs.BoolVar(&c.IncludeInitialExecve, "include-initial-execve", false,
		"do not trim events belonging to the launching shell before its execve")
	fs.StringVar(&c.ObjectPath, "bpf-object", "tracepoints.o", "path to the compiled eBPF object")
	fs.IntVar(&c.RingSize, "ring-size", 4096, "channel depth between ring buffer readers and the assembler")
	return c
}

// Validate checks invariants BindFlags can't express declaratively.
func (c *Config) Validate() error {
	if len(c.Command) == 0 {
		return fmt.Errorf("config: no target command given")
	}
	if c.RingSize <= 0 {
		return fmt.Errorf("config: ring-size must be positive, got %d", c.RingSize)
	}
	return nil
}
