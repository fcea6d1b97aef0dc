// Package logging provides structured logging with slog for bitflipd.
//
// Diagnostic output (startup, sizing probes, per-check progress) goes
// through here; the flip journal is a data file, not a log, and lives in
// internal/journal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written: "stdout", "stderr" or
	// "file".
	Output string

	// FilePath is the log file path when Output is "file".
	FilePath string

	// Component is the name of the component using this logger.
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:     slog.LevelInfo,
		Format:    FormatText,
		Output:    "stderr",
		Component: "bitflipd",
	}
}

// Logger wraps slog.Logger with a runtime-adjustable level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// New creates a Logger from the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(cfg.Level)

	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	case "file":
		file, err := os.OpenFile(cfg.FilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = file
		w = file
	default:
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: l.level}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// SetLevel adjusts the minimum level at runtime. Config hot reloads use
// this to toggle verbose output without restarting the daemon.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("component", name)),
		level:  l.level,
		file:   l.file,
	}
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}
