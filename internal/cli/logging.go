package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"airwave.click/internal/config"
)

// fanoutHandler sends each record to every handler whose own level admits it, so
// stderr can stay quiet while the log file keeps everything.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *fanoutHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return newFanoutHandler(handlers...)
}

// buildLogHandler writes records at the configured level to stderr and, with file
// logging on, every debug record to a rotating log file
func buildLogHandler(cfg *config.Config, cm *config.ConfigManager, stderr io.Writer) slog.Handler {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})

	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		return stderrHandler
	}

	logFilePath := cm.ResolveLogFilePath(cfg.FileLogging.Filename)
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		slog.Error("failed to create log directory, file logging disabled", "path", logFilePath, "error", err)
		return stderrHandler
	}
	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.FileLogging.MaxSizeMB,
		MaxBackups: cfg.FileLogging.MaxBackups,
		MaxAge:     cfg.FileLogging.MaxAgeDays,
		Compress:   cfg.FileLogging.Compress,
	}
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug})
	return newFanoutHandler(stderrHandler, fileHandler)
}

// setupLogging installs the default logger for this run
func setupLogging(cfg *config.Config, cm *config.ConfigManager, stderr io.Writer) {
	handler := buildLogHandler(cfg, cm, stderr)
	slog.SetDefault(slog.New(handler))
	slog.Debug("logging setup completed",
		"level", cfg.LogLevel,
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}
