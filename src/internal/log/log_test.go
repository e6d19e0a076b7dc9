package log

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestBasics(t *testing.T) {
	ctx, h := TestWithCapture(t)
	Debug(ctx, "hello")
	Info(ctx, "hello")
	Error(ctx, "hello")
	want := []string{"debug: hello", "info: hello", "error: hello"}
	if diff := cmp.Diff(h.Logs(), want); diff != "" {
		t.Errorf("logs (-got +want):\n%s", diff)
	}
}

func TestEmptyContext(t *testing.T) {
	_, h := TestWithCapture(t)
	Debug(context.Background(), "this is a debug log") //nolint:staticcheck
	want := []string{
		"dpanic: log: internal error: no logger in provided context",
		"debug: this is a debug log",
	}
	if diff := cmp.Diff(h.Logs(), want); diff != "" {
		t.Errorf("logs (-got +want):\n%s", diff)
	}
}

func TestChildLogger(t *testing.T) {
	ctx, h := TestWithCapture(t)
	child := ChildLogger(ctx, "runner", WithFields(zap.String("branch", "b1")))
	Info(child, "kick")
	entries := h.logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if got, want := entries[0].LoggerName, "runner"; got != want {
		t.Errorf("logger name: got %q want %q", got, want)
	}
	if got := entries[0].ContextMap()["branch"]; got != "b1" {
		t.Errorf("branch field: got %v", got)
	}
}

func TestSpan(t *testing.T) {
	ctx, h := TestWithCapture(t)
	func() {
		_, end := SpanContext(ctx, "exec")
		end()
	}()
	func() {
		err := errors.New("boom")
		end := Span(ctx, "exec")
		end(Errorp(&err))
	}()
	want := []string{
		"debug: exec: span start",
		"debug: exec: span finished ok",
		"debug: exec: span start",
		"error: exec: span failed",
	}
	if diff := cmp.Diff(h.Logs(), want); diff != "" {
		t.Errorf("logs (-got +want):\n%s", diff)
	}
}

func TestProperties(t *testing.T) {
	ctx, h := TestWithCapture(t)
	Info(ctx, "props", Properties("properties", map[string]string{"name": "Default", "b": "x"}))
	got := h.logs.All()[0].ContextMap()["properties"]
	want := map[string]interface{}{"name": "Default", "b": "x"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("properties (-got +want):\n%s", diff)
	}
}
