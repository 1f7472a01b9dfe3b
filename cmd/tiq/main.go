// Command tiq is a terminal client for the TailingsIQ API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/session"
	"github.com/tailingsiq/tailingsiq/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tiq:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	path := cfg.Client.SessionFile
	if path == "" {
		var err error
		if path, err = session.DefaultFilePath(); err != nil {
			return err
		}
	}

	// json goes to the file only; stdout belongs to command output
	logCfg := cfg.Logging
	logCfg.Format = "json"
	logCfg.Filename = filepath.Join(filepath.Dir(path), "tiq.log")
	if err := logging.Init(&logCfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := telemetry.Setup(ctx, cfg.Telemetry)
	defer shutdown(context.Background())

	c, err := newCLI(session.Options{
		BaseURL: cfg.Client.BaseURL,
		Store:   session.NewFileStore(path),
		Timeout: cfg.Client.Timeout,
	}, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	return c.run(ctx, os.Args[1:])
}
