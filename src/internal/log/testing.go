package log

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Test returns a context whose logger writes to t.Log.  It does not touch the global logger, so it
// is safe in parallel tests.
func Test(t testing.TB) context.Context {
	return withLogger(context.Background(), zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)))
}

// History is a set of captured log lines.
type History struct {
	logs *observer.ObservedLogs
}

// TestWithCapture returns a context whose logger records every line, and the captured history.
// The global logger is replaced until the test ends, so tests using it must not run in parallel.
func TestWithCapture(t testing.TB) (context.Context, *History) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core, zap.AddCaller())
	restore := zap.ReplaceGlobals(l)
	t.Cleanup(restore)
	return withLogger(context.Background(), l), &History{logs: logs}
}

// Logs returns captured lines formatted as "level: message".
func (h *History) Logs() []string {
	var result []string
	for _, e := range h.logs.All() {
		result = append(result, fmt.Sprintf("%s: %s", e.Level, e.Message))
	}
	return result
}

// Count returns how many captured lines have exactly the given message.
func (h *History) Count(msg string) int {
	return h.logs.FilterMessage(msg).Len()
}

// HasALog fails the test if nothing was logged.
func (h *History) HasALog(t testing.TB) {
	t.Helper()
	if h.logs.Len() == 0 {
		t.Error("expected some logs, but got none")
	}
}
