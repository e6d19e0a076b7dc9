package obj

import (
	"testing"

	"gocloud.dev/blob/memblob"
)

// NewTestBucket returns an in-memory bucket that is closed when the test ends.
func NewTestBucket(t testing.TB) *Bucket {
	b := memblob.OpenBucket(nil)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck
	return b
}
