// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for LendingDesk components.
//
// The package is a thin layer over slog aimed at CLI usage:
//
//   - Default: stderr output (follows Unix conventions), human-readable
//     text when stderr is a terminal, JSON otherwise
//   - Optional: file logging with automatic directory creation
//
// Basic usage:
//
//	logger := logging.Default()
//	logger.Info("checking server health", "url", serverURL)
//
// With file logging:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.lendingdesk/logs",
//	    Service: "cli",
//	})
//	defer logger.Close()
//
// Logger is safe for concurrent use. The package does NOT redact sensitive
// data; callers must not log tokens or API keys.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
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

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity to emit. Defaults to LevelInfo.
	Level Level

	// LogDir enables file logging when non-empty. Supports ~ expansion.
	// Files are named {service}_{date}.log and written as JSON.
	LogDir string

	// Service names the component, used in file names and as a base
	// attribute on every record. Defaults to "lendingdesk".
	Service string

	// Writer overrides the primary destination. Defaults to stderr.
	// Intended for tests.
	Writer io.Writer
}

// Logger wraps slog with optional secondary file output.
type Logger struct {
	mu   sync.Mutex
	log  *slog.Logger
	file *os.File
}

// New creates a Logger from the config. Construction never fails: if the
// log directory cannot be created the file layer is skipped and a warning
// goes to the primary destination.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = "lendingdesk"
	}
	primary := config.Writer
	if primary == nil {
		primary = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if f, ok := primary.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = slog.NewTextHandler(primary, opts)
	} else {
		handler = slog.NewJSONHandler(primary, opts)
	}

	l := &Logger{}
	if config.LogDir != "" {
		if file, err := openLogFile(config.LogDir, config.Service); err != nil {
			slog.New(handler).Warn("file logging disabled", "error", err)
		} else {
			l.file = file
			handler = teeHandler{handler, slog.NewJSONHandler(file, opts)}
		}
	}

	l.log = slog.New(handler).With("service", config.Service)
	return l
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	return New(Config{})
}

func (l *Logger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log.Error(msg, args...) }

// With returns a Logger that includes the given attributes on every record.
// The derived logger shares the file handle; only Close the root logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...)}
}

// Slog exposes the underlying slog.Logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// Close flushes and closes the log file, if any. Safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// openLogFile creates the log directory and opens today's file for append.
func openLogFile(dir, service string) (*os.File, error) {
	if len(dir) > 0 && dir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expand log dir: %w", err)
		}
		dir = filepath.Join(home, dir[1:])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// teeHandler fans records out to both destinations.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	if t.a.Enabled(ctx, rec.Level) {
		firstErr = t.a.Handle(ctx, rec)
	}
	if t.b.Enabled(ctx, rec.Level) {
		if err := t.b.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}
