// Package logging provides structured logging for playertrack.
//
// This package wraps the standard library's log/slog package so every
// component logs with the same handler, level and attribute conventions.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("retention")
//	log.Info("sweep finished", "deleted", n, "elapsed", time.Since(start))
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

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// ParseLevel converts a config level name into a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func current() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// The returned logger resolves the global handler on every call, so
// package-level loggers created before Init still honor the configured
// level and format.
func Component(name string) *slog.Logger {
	return slog.New(&deferredHandler{attrs: []slog.Attr{slog.String("component", name)}})
}

// deferredHandler forwards records to whatever handler is installed at
// the time of logging.
type deferredHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h *deferredHandler) target() slog.Handler {
	t := current().Handler()
	if len(h.attrs) > 0 {
		t = t.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		t = t.WithGroup(g)
	}
	return t
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current().Handler().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &deferredHandler{groups: h.groups}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	next := &deferredHandler{attrs: h.attrs}
	next.groups = append(append([]string{}, h.groups...), name)
	return next
}

// =============================================================================
// Context values
// =============================================================================

type contextKey int

const (
	contextKeyConnID contextKey = iota
	contextKeyRemote
)

// ContextWithConn adds a connection ID and remote address to the context.
func ContextWithConn(ctx context.Context, connID uint64, remote string) context.Context {
	ctx = context.WithValue(ctx, contextKeyConnID, connID)
	return context.WithValue(ctx, contextKeyRemote, remote)
}

// FromContext returns a logger carrying the connection attributes stored in ctx.
func FromContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(contextKeyConnID).(uint64); ok {
		l = l.With("conn_id", id)
	}
	if remote, ok := ctx.Value(contextKeyRemote).(string); ok {
		l = l.With("remote", remote)
	}
	return l
}
