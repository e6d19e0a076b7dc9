// Package backend executes module tasks.
//
// A Synchronous backend runs whitelisted commands on the calling goroutine.  A Pool runs tasks on
// a bounded set of goroutines and reports each outcome as a TaskCompletion to the Controller the
// task was submitted with.  A Composite puts a synchronous whitelist in front of a pool.
package backend

import (
	"context"
	"path"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

var (
	// ErrClosed is returned when submitting to a closed backend.
	ErrClosed = errors.New("backend is closed")
	// ErrTaskCanceled is the cause of a canceled task's context.
	ErrTaskCanceled = errors.New("task canceled")
)

// Task is one module execution.  ID is unique among running tasks.
type Task struct {
	ID      string
	Command *viztrail.Command
	Context *processor.TaskContext
}

// TaskCompletion reports the outcome of an asynchronous task.  Result is nil when the task was
// canceled before producing one.
type TaskCompletion struct {
	TaskID   string
	Result   processor.Result
	Canceled bool
}

// Controller receives task completions.  TaskFinished may be called from any goroutine.
type Controller interface {
	TaskFinished(c TaskCompletion)
}

// ControllerFunc adapts a function to a Controller.
type ControllerFunc func(c TaskCompletion)

// TaskFinished implements Controller.
func (f ControllerFunc) TaskFinished(c TaskCompletion) { f(c) }

// Backend executes tasks.
type Backend interface {
	// CanExecute reports whether cmd may be executed synchronously.
	CanExecute(cmd *viztrail.Command) bool
	// Execute runs the task on the calling goroutine.
	Execute(ctx context.Context, task Task) processor.Result
	// ExecuteAsync starts the task.  ctl receives exactly one completion unless ExecuteAsync
	// returns an error.  The completion may be delivered on the calling goroutine before
	// ExecuteAsync returns.
	ExecuteAsync(ctx context.Context, task Task, ctl Controller) error
	// CancelTask aborts a running task.  It reports whether the task was known.
	CancelTask(id string) bool
	// Close cancels every running task and waits for them to finish.
	Close() error
}

// Whitelist maps package identifiers to command patterns (path.Match syntax) that may run
// synchronously.
type Whitelist map[string][]string

// Allows reports whether cmd matches the whitelist.
func (w Whitelist) Allows(cmd *viztrail.Command) bool {
	for _, pattern := range w[cmd.PackageID] {
		if ok, err := path.Match(pattern, cmd.CommandID); err == nil && ok {
			return true
		}
	}
	return false
}
