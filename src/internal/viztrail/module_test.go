package viztrail

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vizierdb/vizier/src/internal/require"
)

func TestStateTransitions(t *testing.T) {
	cmd := NewCommand("test", "op", nil)
	t.Run("valid/run-success", func(t *testing.T) {
		m := NewModule(cmd, "", Pending)
		require.True(t, m.SetRunning(time.Now()))
		require.NotNil(t, m.Timestamp().StartedAt)
		require.True(t, m.SetSuccess(time.Now(), Outputs{Stdout: []OutputObject{TextOutput("hi")}}, Provenance{}))
		require.Equal(t, Success, m.State())
		require.Equal(t, "hi", m.Outputs().Stdout[0].Value)
		require.NotNil(t, m.Timestamp().FinishedAt)
	})
	t.Run("valid/run-error", func(t *testing.T) {
		m := NewModule(cmd, "", Pending)
		require.True(t, m.SetRunning(time.Now()))
		var o Outputs
		o.Error(errors.New("boom"))
		require.True(t, m.SetError(time.Now(), o))
		require.Equal(t, Error, m.State())
		require.Equal(t, "boom", m.Outputs().Stderr[0].Value)
		require.False(t, m.Provenance().IsKnown())
	})
	t.Run("invalid/terminal-is-final", func(t *testing.T) {
		m := NewModule(cmd, "", Pending)
		require.True(t, m.SetCanceled(time.Now()))
		require.False(t, m.SetRunning(time.Now()))
		require.False(t, m.SetSuccess(time.Now(), Outputs{}, Provenance{}))
		require.False(t, m.SetError(time.Now(), Outputs{}))
		require.False(t, m.SetCanceled(time.Now()))
		require.Equal(t, Canceled, m.State())
	})
	t.Run("invalid/success-needs-running", func(t *testing.T) {
		m := NewModule(cmd, "", Pending)
		require.False(t, m.SetSuccess(time.Now(), Outputs{}, Provenance{}))
		require.False(t, m.SetError(time.Now(), Outputs{}))
		require.Equal(t, Pending, m.State())
	})
	t.Run("valid/reuse", func(t *testing.T) {
		m := succeeded(t, writes("A", "a1"))
		r := m.Rerun()
		require.NotEqual(t, m.ID, r.ID)
		require.Equal(t, Pending, r.State())
		require.True(t, r.Reuse(time.Now()))
		require.Equal(t, m.Provenance(), r.Provenance())
		require.False(t, m.Reuse(time.Now()))
	})
	t.Run("valid/first-terminal-wins", func(t *testing.T) {
		m := NewModule(cmd, "", Pending)
		require.True(t, m.SetRunning(time.Now()))
		var wg sync.WaitGroup
		results := make([]bool, 2)
		wg.Add(2)
		go func() { defer wg.Done(); results[0] = m.SetCanceled(time.Now()) }()
		go func() { defer wg.Done(); results[1] = m.SetSuccess(time.Now(), Outputs{}, Provenance{}) }()
		wg.Wait()
		require.True(t, results[0] != results[1], "exactly one transition must win")
		require.True(t, m.State().IsTerminal())
	})
}

func TestStateText(t *testing.T) {
	for s := Pending; s <= Canceled; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(text))
		require.Equal(t, s, got)
	}
	var s State
	require.Error(t, s.UnmarshalText([]byte("DONE")))
}

func TestRevision(t *testing.T) {
	m := NewModule(NewCommand("test", "op", nil), "", Pending)
	require.Equal(t, uint64(0), m.Revision())
	require.True(t, m.SetRunning(time.Now()))
	require.True(t, m.SetSuccess(time.Now(), Outputs{}, Provenance{}))
	require.False(t, m.SetCanceled(time.Now()))
	require.Equal(t, uint64(2), m.Revision())
	require.Equal(t, uint64(2), RestoreModule(m.Record()).Revision())
}

func TestWriteRecordIsSerialized(t *testing.T) {
	m := NewModule(NewCommand("test", "op", nil), "", Pending)
	var stored ModuleRecord
	taken := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- m.WriteRecord(func(r ModuleRecord) error {
			close(taken)
			<-release
			stored = r
			return nil
		})
	}()
	<-taken
	// The first record is PENDING; the state changes while it is being written.
	require.True(t, m.SetRunning(time.Now()))
	second := make(chan error, 1)
	go func() {
		second <- m.WriteRecord(func(r ModuleRecord) error {
			stored = r
			return nil
		})
	}()
	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	require.Equal(t, Running, stored.State)
	require.Equal(t, uint64(1), stored.Revision)
}
