package pctx

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/log"
	"go.uber.org/zap"
)

// TODO returns a context carrying the global logger, for code that does not receive a context yet.
func TODO() context.Context {
	return log.AddLogger(context.TODO())
}

// Background returns a root context for a long-running process.
func Background(process string) context.Context {
	ctx := log.AddLogger(context.Background())
	return Child(ctx, process)
}

// Option customizes a child context.
type Option struct {
	modifyContext func(context.Context) context.Context
	modifyLogger  log.LogOption
}

// WithFields returns an option that attaches fields to each log line of the child.
func WithFields(fields ...zap.Field) Option {
	return Option{
		modifyLogger: log.WithFields(fields...),
	}
}

// WithOptions returns an option that applies zap options to the child's logger.
func WithOptions(opts ...zap.Option) Option {
	return Option{
		modifyLogger: log.WithOptions(opts...),
	}
}

// Child returns a named child context.  The name may be empty.
func Child(ctx context.Context, name string, opts ...Option) context.Context {
	var logOptions []log.LogOption
	for _, opt := range opts {
		if o := opt.modifyLogger; o != nil {
			logOptions = append(logOptions, o)
		}
		if o := opt.modifyContext; o != nil {
			ctx = o(ctx)
		}
	}
	return log.ChildLogger(ctx, name, logOptions...)
}

// WithCancel is context.WithCancelCause with a plain CancelFunc, so that goroutines watching the
// context can report why it ended.
func WithCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	return ctx, func() { cancel(context.Canceled) }
}
