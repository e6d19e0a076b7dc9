// Package require holds the assertions used by vizier tests.  It is a thin layer over testify's
// require package with a few helpers for the shapes vizier tests check often.
package require

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	NoError       = require.NoError
	Error         = require.Error
	ErrorIs       = require.ErrorIs
	ErrorAs       = require.ErrorAs
	ErrorContains = require.ErrorContains
	Equal         = require.Equal
	NotEqual      = require.NotEqual
	True          = require.True
	False         = require.False
	Nil           = require.Nil
	NotNil        = require.NotNil
	Len           = require.Len
	Empty         = require.Empty
	NotEmpty      = require.NotEmpty
	Contains      = require.Contains
	ElementsMatch = require.ElementsMatch
	Same          = require.Same
	NotSame       = require.NotSame
	Eventually    = require.Eventually
	NotContains   = require.NotContains
)

// NoDiff fails the test if want and got differ according to cmp.Diff.
func NoDiff(t testing.TB, want, got interface{}, opts []cmp.Option, msgAndArgs ...interface{}) {
	t.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		args := append([]interface{}{"(-want +got):\n" + diff}, msgAndArgs...)
		require.Fail(t, "values differ", args...)
	}
}

// NoErrorWithinT fails the test if f does not return nil within d.
func NoErrorWithinT(t testing.TB, d time.Duration, f func() error, msgAndArgs ...interface{}) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- f() }()
	select {
	case err := <-errCh:
		require.NoError(t, err, msgAndArgs...)
	case <-time.After(d):
		require.Fail(t, "operation did not finish within "+d.String(), msgAndArgs...)
	}
}
