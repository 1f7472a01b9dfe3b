package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *slog.Logger

// Init installs the process logger. Text output is mirrored to stdout;
// JSON output goes to the rolling file only. An empty Filename logs to
// stderr without rotation, which is what the CLI uses.
func Init(cfg *config.LoggingConfig) error {
	var writer io.Writer = os.Stderr

	if cfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
			return err
		}

		roller := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}

		writer = roller
		if cfg.Format != "json" {
			writer = io.MultiWriter(os.Stdout, roller)
		}
	}

	SetLogger(slog.New(newHandler(writer, cfg.Format, parseLevel(cfg.Level))))
	return nil
}

// SetLogger replaces the process logger, e.g. with one writing to a test buffer.
func SetLogger(l *slog.Logger) {
	logger = l
	slog.SetDefault(l)
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

func With(args ...any) *slog.Logger {
	if logger != nil {
		return logger.With(args...)
	}
	return slog.Default().With(args...)
}
