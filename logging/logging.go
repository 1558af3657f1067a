// Package logging wraps log/slog with a component attribute so that
// messages from the transfer loop, the decoder and the display can be
// filtered independently.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Component identifiers.
const (
	ComponentMain     Component = "main"
	ComponentUSB      Component = "usb"
	ComponentFirmware Component = "firmware"
	ComponentTransfer Component = "transfer"
	ComponentDecoder  Component = "decoder"
	ComponentDisplay  Component = "display"
)

// Format specifies the output format of the default logger.
type Format int

// Log formats.
const (
	FormatText Format = iota
	FormatJSON
)

var (
	level = new(slog.LevelVar)

	mu     sync.RWMutex
	logger *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// ParseFormat converts "text" or "json" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// SetLevel sets the minimum level for all logging.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// Configure replaces the default logger with one writing to w in the given
// format. The shared level variable is kept.
func Configure(w io.Writer, f Format) {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch f {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(h)
}

// SetLogger replaces the default logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func log(l slog.Level, c Component, msg string, args []any) {
	current().Log(context.Background(), l, msg, append([]any{"component", string(c)}, args...)...)
}

// Debug logs at debug level.
func Debug(c Component, msg string, args ...any) { log(slog.LevelDebug, c, msg, args) }

// Info logs at info level.
func Info(c Component, msg string, args ...any) { log(slog.LevelInfo, c, msg, args) }

// Warn logs at warn level.
func Warn(c Component, msg string, args ...any) { log(slog.LevelWarn, c, msg, args) }

// Error logs at error level.
func Error(c Component, msg string, args ...any) { log(slog.LevelError, c, msg, args) }
