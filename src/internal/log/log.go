// Package log implements context-scoped structured logging for vizier.
//
// Loggers travel inside a context.Context.  Create a root context with pctx.Background (or
// AddLogger in a main function), derive named children with pctx.Child, and log with the
// package-level Debug, Info and Error functions.
package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key/value pair attached to a log line.
type Field = zap.Field

type loggerKey struct{}

// LogOption modifies a logger while creating a child context.
type LogOption func(l *zap.Logger) *zap.Logger

// AddLogger returns a context carrying the global logger.  Call InitLogger first when running as
// a binary.
func AddLogger(ctx context.Context) context.Context {
	return withLogger(ctx, zap.L())
}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	if l == nil {
		zap.L().DPanic("log: internal error: nil logger provided to withLogger")
		l = zap.L()
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

func extractLogger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		zap.L().DPanic("log: internal error: nil context provided to ExtractLogger")
		return zap.L()
	}
	l, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok || l == nil {
		zap.L().DPanic("log: internal error: no logger in provided context")
		return zap.L()
	}
	return l
}

// WithFields adds fields to every line logged by the child.
func WithFields(fields ...Field) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.With(fields...)
	}
}

// WithOptions applies zap options to the child logger.
func WithOptions(opts ...zap.Option) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.WithOptions(opts...)
	}
}

// ChildLogger returns a context whose logger is named name (appended to the parent's name) and
// modified by opts.
func ChildLogger(ctx context.Context, name string, opts ...LogOption) context.Context {
	l := extractLogger(ctx)
	if name != "" {
		l = l.Named(name)
	}
	for _, opt := range opts {
		l = opt(l)
	}
	return withLogger(ctx, l)
}

// Debug logs a message at level debug.
func Debug(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at level info.
func Info(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Error logs a message at level error.  Errors logged here are problems an operator should look
// at; errors returned to a caller should not also be logged.
func Error(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// InitLogger replaces the global logger with a JSON logger on stderr at the provided level.  An
// unparseable level falls back to info.
func InitLogger(level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stderr), lvl)
	l := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l)
}
