package backend

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

var _ Backend = (*Composite)(nil)

// Composite executes synchronously with one backend and asynchronously with another.
type Composite struct {
	sync  Backend
	async Backend
}

// NewComposite returns a backend that runs what sync can execute on sync and everything else on
// async.
func NewComposite(sync, async Backend) *Composite {
	return &Composite{sync: sync, async: async}
}

// CanExecute implements Backend.
func (c *Composite) CanExecute(cmd *viztrail.Command) bool {
	return c.sync.CanExecute(cmd)
}

// Execute implements Backend.
func (c *Composite) Execute(ctx context.Context, task Task) processor.Result {
	return c.sync.Execute(ctx, task)
}

// ExecuteAsync implements Backend.
func (c *Composite) ExecuteAsync(ctx context.Context, task Task, ctl Controller) error {
	return c.async.ExecuteAsync(ctx, task, ctl)
}

// CancelTask implements Backend.
func (c *Composite) CancelTask(id string) bool {
	return c.async.CancelTask(id)
}

// Close implements Backend.
func (c *Composite) Close() error {
	return errors.Join(c.sync.Close(), c.async.Close())
}
