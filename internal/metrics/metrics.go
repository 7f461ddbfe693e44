// Package metrics is the ambient observability layer (SPEC_FULL.md §1.1):
// a small Logger interface with a log/slog-backed default implementation,
// plus a prometheus-backed Registry exposing GC pause/heap gauges, IC
// transition counters, and event-loop queue-depth — the same diagnostic
// shape go-ethereum's metrics stack gives its own GC/database internals,
// generalized here rather than hand-rolled over the standard library
// (SPEC_FULL.md §2's dependency ledger).
package metrics

import (
	"log/slog"
)

// Logger is the diagnostics sink the event loop accepts at isolate
// construction (SPEC_FULL.md §1.1); the interpreter and GC take none.
// Calls happen only on callback failures, never on the hot path.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// NoopLogger discards everything; it's the zero-config default.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// StdLogger adapts a *slog.Logger to the Logger interface.
type StdLogger struct{ L *slog.Logger }

func NewStdLogger(l *slog.Logger) StdLogger {
	if l == nil {
		l = slog.Default()
	}
	return StdLogger{L: l}
}

func (s StdLogger) Debug(msg string, kv ...any) { s.L.Debug(msg, kv...) }
func (s StdLogger) Info(msg string, kv ...any)  { s.L.Info(msg, kv...) }
func (s StdLogger) Warn(msg string, kv ...any)  { s.L.Warn(msg, kv...) }
func (s StdLogger) Error(msg string, kv ...any) { s.L.Error(msg, kv...) }
