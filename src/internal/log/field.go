package log

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Properties is a Field containing a string map, logged with sorted keys.
func Properties(name string, props map[string]string) Field {
	if len(props) == 0 {
		return zap.Skip()
	}
	return zap.Object(name, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			enc.AddString(k, props[k])
		}
		return nil
	}))
}

type attempt struct{ i, max int }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (a attempt) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("attempt", a.i)
	enc.AddInt("totalAttempts", a.max)
	return nil
}

// RetryAttempt is a Field that encodes the current retry (0-indexed) and the total number of
// retries.
func RetryAttempt(i int, max int) Field {
	return zap.Inline(&attempt{i: i, max: max})
}
