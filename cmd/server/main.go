package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/container"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	if err := logging.Init(&cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logging.Error("Failed to flush traces", "error", err)
		}
	}()

	c, err := container.New(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("initializing container: %w", err)
	}
	defer c.Cleanup()

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Server.Port)
	s := &http.Server{
		Handler:           otelhttp.NewHandler(c.Router, cfg.Telemetry.ServiceName),
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("Server starting", "addr", addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logging.Error("Graceful shutdown failed", "error", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	default:
		return nil
	}
}
