// Package logger provides component-scoped slog loggers with colorized
// terminal output for the CLI and SDK.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifiers for color-coded logging
type Component string

const (
	ComponentAuth    Component = "AUTH"
	ComponentJWKS    Component = "JWKS"
	ComponentClient  Component = "CLIENT"
	ComponentPayment Component = "PAYMENT"
	ComponentCLI     Component = "CLI"
)

// ANSI color codes
const (
	colorReset   = "\033[0m"
	colorGreen   = "\033[32m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorYellow  = "\033[33m"
	colorCyan    = "\033[36m"
)

// componentColors maps components to their display colors
var componentColors = map[Component]string{
	ComponentAuth:    colorGreen,
	ComponentJWKS:    colorCyan,
	ComponentClient:  colorBlue,
	ComponentPayment: colorMagenta,
	ComponentCLI:     colorYellow,
}

// ComponentHandler is a slog handler that prefixes records with a color-coded
// component tag.
type ComponentHandler struct {
	slog.Handler
	out       io.Writer
	mu        sync.Mutex
	component Component
	useColors bool
	level     slog.Level
}

// NewComponentHandler creates a new color-coded handler.
func NewComponentHandler(out io.Writer, component Component, useColors bool, level slog.Level) *ComponentHandler {
	opts := &slog.HandlerOptions{Level: level}
	return &ComponentHandler{
		Handler:   slog.NewTextHandler(out, opts),
		out:       out,
		component: component,
		useColors: useColors,
		level:     level,
	}
}

// Enabled reports whether the handler emits records at the given level.
func (h *ComponentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle writes a record as: [COMPONENT] message attrs...
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	color, reset := componentColors[h.component], colorReset
	if !h.useColors {
		color, reset = "", ""
	}

	fmt.Fprintf(h.out, "%s[%s]%s %s", color, h.component, reset, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})
	fmt.Fprintln(h.out)
	return nil
}

// WithAttrs returns a new handler with the given attributes.
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		out:       h.out,
		component: h.component,
		useColors: h.useColors,
		level:     h.level,
	}
}

// WithGroup returns a new handler with the given group.
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		out:       h.out,
		component: h.component,
		useColors: h.useColors,
		level:     h.level,
	}
}

// Logger wraps slog.Logger with component-specific helpers.
type Logger struct {
	*slog.Logger
	component Component
}

// New creates a component logger writing to stderr.
func New(component Component) *Logger {
	useColors := os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
	return NewWithWriter(component, os.Stderr, useColors, slog.LevelInfo)
}

// NewWithWriter creates a logger with a custom writer, color setting and level.
func NewWithWriter(component Component, w io.Writer, useColors bool, level slog.Level) *Logger {
	handler := NewComponentHandler(w, component, useColors, level)
	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// Success logs a user-facing success line.
func (l *Logger) Success(msg string, args ...any) {
	l.Info("\U0001F510 "+msg, args...)
}

// Notice logs a user-facing informational line.
func (l *Logger) Notice(msg string, args ...any) {
	l.Info("\U0001F513 "+msg, args...)
}

// Problem logs a user-facing failure line without raising.
func (l *Logger) Problem(msg string, args ...any) {
	l.Warn("\U0001F6A8 "+msg, args...)
}
