// File: internal/logging/logger.go
// Author: momentics <momentics@gmail.com>
//
// Package logging provides the structured logger shared by hioload-ev
// components. It wraps log/slog so public APIs can accept a plain *slog.Logger
// while internals get a small, nil-safe helper with component scoping.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log levels accepted by New.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger is a thin wrapper over *slog.Logger. A nil *Logger discards everything.
type Logger struct {
	logger *slog.Logger
}

// New builds a Logger writing to w in "json" or "text" format.
// An unknown level falls back to INFO.
func New(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{logger: slog.New(h)}
}

// FromSlog adapts l, or slog.Default() when l is nil.
func FromSlog(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l}
}

// Nop returns a Logger that drops every record.
func Nop() *Logger {
	return &Logger{logger: slog.New(discardHandler{})}
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With(args...)}
}

// Component scopes the logger to a named component.
func (l *Logger) Component(name string) *Logger {
	return l.With(slog.String("component", name))
}

// Slog exposes the underlying logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(discardHandler{})
	}
	return l.logger
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
