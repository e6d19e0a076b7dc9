// Package processor defines how package commands are executed.
//
// A Processor computes one command against a TaskContext, which gives it access to the named
// datasets visible to the module and records every dataset it reads, writes or deletes.  The
// outcome is a Result: a *Success carrying outputs and provenance, or a *Failure carrying outputs
// only.
package processor

import (
	"context"
	"runtime"
	"sync"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

const panicLen = 32768

// Result is the outcome of executing a command: a *Success or a *Failure.
type Result interface {
	isResult()
}

// Success is the result of a command that completed.
type Success struct {
	Outputs    viztrail.Outputs
	Provenance viztrail.Provenance
}

// Failure is the result of a command that failed.  The error is on Outputs.Stderr.
type Failure struct {
	Outputs viztrail.Outputs
}

func (*Success) isResult() {}
func (*Failure) isResult() {}

// Fail returns a Failure whose stderr holds err, after any outputs already produced.
func Fail(outputs viztrail.Outputs, err error) *Failure {
	outputs = outputs.Clone()
	outputs.Error(err)
	return &Failure{Outputs: outputs}
}

// Processor executes the commands of one package.
type Processor interface {
	// Compute runs commandID with args.  A returned error is equivalent to a Failure with the
	// error text on stderr.
	Compute(ctx context.Context, commandID string, args viztrail.Record, tctx *TaskContext) (Result, error)
}

// Func adapts a function to a Processor.
type Func func(ctx context.Context, commandID string, args viztrail.Record, tctx *TaskContext) (Result, error)

// Compute implements Processor.
func (f Func) Compute(ctx context.Context, commandID string, args viztrail.Record, tctx *TaskContext) (Result, error) {
	return f(ctx, commandID, args, tctx)
}

// Registry maps package identifiers to processors.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register sets the processor for a package, replacing any previous one.
func (r *Registry) Register(packageID string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[packageID] = p
}

// Get returns the processor for a package.
func (r *Registry) Get(packageID string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[packageID]
	return p, ok
}

// Execute runs cmd with the registered processor.  It never returns nil: a missing processor, an
// error and a panic all become a *Failure.
func (r *Registry) Execute(ctx context.Context, cmd *viztrail.Command, tctx *TaskContext) Result {
	p, ok := r.Get(cmd.PackageID)
	if !ok {
		return Fail(viztrail.Outputs{}, errors.Errorf("no processor for package %q", cmd.PackageID))
	}
	return Run(ctx, p, cmd, tctx)
}

// Run runs cmd with p, converting errors and panics into a *Failure.
func Run(ctx context.Context, p Processor, cmd *viztrail.Command, tctx *TaskContext) (result Result) {
	ctx, end := log.SpanContext(ctx, "compute", zap.String("command", cmd.Name()), zap.String("module", tctx.ModuleID))
	var err error
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, panicLen)
			stack = stack[:runtime.Stack(stack, false)]
			err = errors.Errorf("panic: %v", r)
			log.Error(ctx, "processor panicked", zap.Any("panic", r), zap.ByteString("stack", stack))
			result = Fail(tctx.Outputs(), err)
		}
		end(log.Errorp(&err))
	}()
	result, err = p.Compute(ctx, cmd.CommandID, cmd.Arguments, tctx)
	if err != nil {
		return Fail(tctx.Outputs(), err)
	}
	if result == nil {
		err = errors.New("processor returned no result")
		return Fail(tctx.Outputs(), err)
	}
	if f, ok := result.(*Failure); ok && len(f.Outputs.Stderr) == 0 {
		f.Outputs.Error(errors.Errorf("%s failed", cmd.Name()))
	}
	return result
}
