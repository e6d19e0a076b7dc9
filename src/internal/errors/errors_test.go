package errors

import (
	"fmt"
	"io"
	"testing"
)

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestEnsureStack(t *testing.T) {
	if EnsureStack(nil) != nil {
		t.Fatal("EnsureStack(nil) should be nil")
	}
	err := EnsureStack(io.EOF)
	if !Is(err, io.EOF) {
		t.Errorf("EnsureStack should preserve the chain: %v", err)
	}
	if got := fmt.Sprintf("%+v", err); got == io.EOF.Error() {
		t.Errorf("EnsureStack should add a stack trace, got %q", got)
	}
	wrapped := Wrap(io.EOF, "read")
	if EnsureStack(wrapped) != wrapped {
		t.Error("EnsureStack should not re-wrap an error that already has a stack")
	}
}

func TestClose(t *testing.T) {
	var err error
	Close(&err, closer{}, "close")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Close(&err, closer{err: io.ErrClosedPipe}, "close")
	if !Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected close error, got %v", err)
	}
	first := err
	Close(&err, closer{err: io.EOF}, "close again")
	if err != first {
		t.Fatalf("Close must not overwrite an existing error")
	}
}
