// Command sentryd launches a target process, traces every syscall it
// makes via an eBPF probe, and prints a behavioral report once the
// target exits.
//
// Usage:
//
//	sentryd [flags] -- <command> [args...]
//
// See internal/config for the full flag surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/itzagasta/sentryd/internal/config"
	"github.com/itzagasta/sentryd/internal/launch"
	"github.com/itzagasta/sentryd/internal/pipeline"
	"github.com/itzagasta/sentryd/internal/probe"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cmd := newRootCommand(log)
	if err := cmd.Execute(); err != nil {
		log.WithError(err).Fatal("sentryd failed")
	}
}

func newRootCommand(log logrus.FieldLogger) *cobra.Command {
	root := &cobra.Command{
		Use:           "sentryd -- <command> [args...]",
		Short:         "Trace a process's syscalls and produce a behavioral report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cfg := config.BindFlags(root.Flags())

	root.RunE = func(c *cobra.Command, args []string) error {
		dash := c.ArgsLenAtDash()
		if dash < 0 {
			return fmt.Errorf("usage: sentryd [flags] -- <command> [args...]")
		}
		cfg.Command = args[dash:]
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cfg, log)
	}

	return root
}

func run(cfg *config.Config, log logrus.FieldLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, unix.SIGTERM)
	go func() {
		<-sig
		log.Warn("received termination signal, shutting down")
		cancel()
	}()

	target, err := launch.Start(cfg)
	if err != nil {
		return err
	}
	log.WithField("pid", target.PID).Info("target launched")

	objPath := cfg.ObjectPath
	if !filepath.IsAbs(objPath) {
		if exe, err := os.Executable(); err == nil {
			objPath = filepath.Join(filepath.Dir(exe), cfg.ObjectPath)
		}
	}

	handle, err := probe.LoadTracepoints(objPath, uint32(target.PID), log)
	if err != nil {
		return fmt.Errorf("sentryd: %w", err)
	}

	go func() {
		if err := target.Wait(); err != nil {
			log.WithError(err).Debug("target exited")
		}
	}()

	var jsonFile *os.File
	if cfg.JSONPath != "" {
		jsonFile, err = os.Create(cfg.JSONPath)
		if err != nil {
			handle.Close()
			return fmt.Errorf("sentryd: create json output: %w", err)
		}
		defer jsonFile.Close()
	}

	p := pipeline.New(log)
	rep, err := p.Run(ctx, handle, pipeline.Options{
		AnchorEnabled: !cfg.IncludeInitialExecve,
		JSONOut:       jsonFile,
		RingSize:      cfg.RingSize,
	})
	if err != nil {
		return fmt.Errorf("sentryd: pipeline: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
