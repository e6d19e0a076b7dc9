package pctx

import (
	"context"
	"testing"

	"github.com/vizierdb/vizier/src/internal/log"
	"go.uber.org/zap"
)

func TestBackground(t *testing.T) {
	_, h := log.TestWithCapture(t)
	log.Info(Background(""), "hi")
	h.HasALog(t)
}

func TestTODO(t *testing.T) {
	_, h := log.TestWithCapture(t)
	log.Info(TODO(), "hi")
	h.HasALog(t)
}

func TestChildWithFields(t *testing.T) {
	ctx, h := log.TestWithCapture(t)
	log.Info(Child(ctx, "worker", WithFields(zap.Int("slot", 3))), "started")
	if got, want := h.Count("started"), 1; got != want {
		t.Fatalf("count: got %d want %d", got, want)
	}
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(TODO())
	cancel()
	<-ctx.Done()
	if context.Cause(ctx) != context.Canceled {
		t.Fatalf("cause: got %v", context.Cause(ctx))
	}
}
