// Package ipclog provides the structured logger used across the subnet
// node. It wraps log/slog the way the upstream client wraps its own
// root logger: a handful of verbs (Trace/Debug/Info/Warn/Error/Crit) and
// a constructor that bakes in a fixed set of key/value context.
package ipclog

import (
	"context"
	"log/slog"
	"os"
)

// levelTrace and levelCrit extend slog's four built-in levels for the
// Trace and Crit verbs: Trace sits below Debug, Crit above Error.
const (
	levelTrace = slog.Level(-8)
	levelCrit  = slog.Level(12)
)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelTrace}))

// SetRoot replaces the process-wide root handler, e.g. to switch to JSON
// output or raise verbosity. Loggers already returned by New keep the
// handler they were built with; only later New calls use h.
func SetRoot(h slog.Handler) {
	root = slog.New(h)
}

// Logger is a named, context-carrying logger. Distinct components hold
// their own Logger so every line it emits is tagged with "module=...".
type Logger struct {
	s *slog.Logger
}

// New returns a Logger tagged with module and any additional key/value
// pairs, e.g. New("topdown", "subnet", sid.String()).
func New(module string, kv ...any) Logger {
	args := append([]any{"module", module}, kv...)
	return Logger{s: root.With(args...)}
}

func (l Logger) With(kv ...any) Logger { return Logger{s: l.s.With(kv...)} }

func (l Logger) Trace(msg string, kv ...any) { l.s.Log(context.Background(), levelTrace, msg, kv...) }
func (l Logger) Debug(msg string, kv ...any) { l.s.Debug(msg, kv...) }
func (l Logger) Info(msg string, kv ...any)  { l.s.Info(msg, kv...) }
func (l Logger) Warn(msg string, kv ...any)  { l.s.Warn(msg, kv...) }
func (l Logger) Error(msg string, kv ...any) { l.s.Error(msg, kv...) }
func (l Logger) Crit(msg string, kv ...any)  { l.s.Log(context.Background(), levelCrit, msg, kv...) }
