package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EndSpanFunc is a function that ends a span.
type EndSpanFunc = func(fields ...Field)

const errorpType = zapcore.InlineMarshalerType + 100

// Errorp is a Field that marks a span as failed if *err is non-nil when the span ends.
func Errorp(err *error) Field {
	return zapcore.Field{
		Key:       "error",
		Type:      errorpType,
		Interface: err,
	}
}

const (
	spanStarting = "span start"
	spanOK       = "span finished ok"
	spanFailed   = "span failed"
)

// SpanContext starts a new span at level debug, returning a context scoped to the span and a
// function that ends it.  Pass zap.Error(err) or Errorp(&err) to the end function to mark the
// span as failed; failed spans are logged at level error.
func SpanContext(rctx context.Context, event string, fields ...Field) (context.Context, EndSpanFunc) {
	l := extractLogger(rctx).Named(event).With(fields...)
	l.WithOptions(zap.AddCallerSkip(1)).Debug(event + ": " + spanStarting)
	start := time.Now()
	end := func(rawFields ...Field) {
		msg := spanOK
		out := []Field{zap.Duration("spanDuration", time.Since(start))}
		for _, f := range rawFields {
			if f.Type == errorpType {
				if errp, ok := f.Interface.(*error); ok && *errp != nil {
					msg = spanFailed
					out = append(out, zap.Error(*errp))
				}
				continue
			}
			if _, ok := f.Interface.(error); ok && f.Type == zapcore.ErrorType {
				msg = spanFailed
			}
			out = append(out, f)
		}
		if msg == spanFailed {
			l.Error(event+": "+msg, out...)
			return
		}
		l.Debug(event+": "+msg, out...)
	}
	return withLogger(rctx, l), end
}

// Span starts a new span at level debug.  See SpanContext.
func Span(ctx context.Context, event string, fields ...Field) EndSpanFunc {
	_, end := SpanContext(ctx, event, fields...)
	return end
}
