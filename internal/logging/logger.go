// Package logging provides the structured logger used by the CLI and the tracker.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	Output    string // stderr or stdout
	Component string
}

func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var output io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		output = os.Stdout
	}

	return NewWithWriter(output, level, cfg.Format, cfg.Component)
}

func NewWithWriter(w io.Writer, level slog.Level, format, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler).With(slog.String("component", component))}
}

// Default reads FITLOG_LOG_LEVEL and FITLOG_LOG_FORMAT.
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("FITLOG_LOG_LEVEL"),
		Format:    os.Getenv("FITLOG_LOG_FORMAT"),
		Component: component,
	})
}

// Discard drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, slog.LevelError, "text", "")
}

func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run_id", runID))}
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Float64("duration_ms", float64(d.Microseconds())/1000))}
}
