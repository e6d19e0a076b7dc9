// Package script runs starlark cells.
//
// Cells see a predeclared vizierdb module for dataset access; print writes to the module's
// stdout.
package script

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// PackageID is the identifier script commands are declared under.
const PackageID = "script"

const (
	goContextKey   = "goContext"
	taskContextKey = "taskContext"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Processor executes starlark cells.
type Processor struct{}

var _ processor.Processor = (*Processor)(nil)

// New returns a script processor.
func New() *Processor {
	return &Processor{}
}

func goContext(t *starlark.Thread) context.Context {
	if ctx, ok := t.Local(goContextKey).(context.Context); ok {
		return ctx
	}
	return pctx.TODO()
}

func taskContext(t *starlark.Thread) *processor.TaskContext {
	tc, _ := t.Local(taskContextKey).(*processor.TaskContext)
	return tc
}

// Compute implements processor.Processor.
func (p *Processor) Compute(rctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
	if commandID != "starlark" {
		return nil, errors.Errorf("unknown script command %q", commandID)
	}
	source, err := args.String("source")
	if err != nil {
		return nil, err
	}
	ctx, cancel := pctx.WithCancel(rctx)
	defer cancel()

	thread := &starlark.Thread{
		Name: tc.ModuleID,
		Print: func(t *starlark.Thread, msg string) {
			taskContext(t).Print(msg)
		},
	}
	thread.SetLocal(goContextKey, ctx)
	thread.SetLocal(taskContextKey, tc)
	go func() {
		<-ctx.Done()
		if err := context.Cause(ctx); err != nil {
			thread.Cancel(err.Error())
		} else {
			thread.Cancel("no context error, but context is done")
		}
	}()

	_, err = starlark.ExecFileOptions(fileOptions, thread, "cell.star", source, starlark.StringDict{
		"vizierdb": vizierdbModule,
	})
	if err != nil {
		if rctx.Err() != nil {
			log.Info(ctx, "starlark cell interrupted", zap.Error(context.Cause(rctx)))
		}
		evalErr := &starlark.EvalError{}
		if errors.As(err, &evalErr) {
			return tc.Failure(errors.New(evalErr.Backtrace())), nil
		}
		return tc.Failure(err), nil
	}
	return tc.Success(), nil
}
