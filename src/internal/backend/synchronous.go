package backend

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

var _ Backend = (*Synchronous)(nil)

// Synchronous runs whitelisted commands on the calling goroutine.  It has no asynchronous mode.
type Synchronous struct {
	registry  *processor.Registry
	whitelist Whitelist
}

// NewSynchronous returns a synchronous backend for the whitelisted commands.
func NewSynchronous(registry *processor.Registry, whitelist Whitelist) *Synchronous {
	return &Synchronous{registry: registry, whitelist: whitelist}
}

// CanExecute implements Backend.
func (s *Synchronous) CanExecute(cmd *viztrail.Command) bool {
	return s.whitelist.Allows(cmd)
}

// Execute implements Backend.
func (s *Synchronous) Execute(ctx context.Context, task Task) processor.Result {
	return s.registry.Execute(ctx, task.Command, task.Context)
}

// ExecuteAsync implements Backend.  The task runs, and ctl receives its completion, before
// ExecuteAsync returns.
func (s *Synchronous) ExecuteAsync(ctx context.Context, task Task, ctl Controller) error {
	ctl.TaskFinished(TaskCompletion{TaskID: task.ID, Result: s.Execute(ctx, task)})
	return nil
}

// CancelTask implements Backend.  Synchronous tasks cannot be canceled.
func (s *Synchronous) CancelTask(string) bool { return false }

// Close implements Backend.
func (s *Synchronous) Close() error { return nil }
