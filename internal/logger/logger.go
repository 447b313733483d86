// Package logger holds the process-wide structured logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelEnv names the environment variable read at startup.
const LevelEnv = "PDFSIGN_LOG_LEVEL"

var (
	Logger *slog.Logger
	level  = new(slog.LevelVar)
	mu     sync.Mutex
)

func init() {
	lvl, err := ParseLevel(os.Getenv(LevelEnv))
	if err != nil {
		lvl = slog.LevelInfo
	}
	initLogger(lvl, os.Stderr, false)
}

// ParseLevel maps debug, info, warn and error (any case) to a level. The
// empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func initLogger(lvl slog.Level, w io.Writer, useJSON bool) {
	if w == nil {
		w = os.Stderr
	}

	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
}

// SetLevel changes the level of the current logger.
func SetLevel(lvl slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(lvl)
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}

// SetOutput replaces the logger's destination, keeping the level.
func SetOutput(w io.Writer, useJSON bool) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(level.Level(), w, useJSON)
}

// Configure applies a level name and a format ("text" or "json").
func Configure(levelName, format string, w io.Writer) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	var useJSON bool
	switch strings.ToLower(format) {
	case "", "text":
	case "json":
		useJSON = true
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	SetOutput(w, useJSON)
	SetLevel(lvl)
	return nil
}

// Discard silences all output. Used by tests.
func Discard() {
	SetOutput(io.Discard, false)
}

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global Logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	mu.Lock()
	defer mu.Unlock()
	return Logger
}
