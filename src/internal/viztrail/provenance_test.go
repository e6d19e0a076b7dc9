package viztrail

import (
	"testing"
	"time"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/require"
)

func desc(id string) *datastore.Descriptor {
	return &datastore.Descriptor{ID: id, Columns: []datastore.Column{{ID: 0, Name: "a"}}, RowCount: 1}
}

func succeeded(t *testing.T, prov Provenance) *Module {
	m := NewModule(NewCommand("test", "op", nil), "", Pending)
	require.True(t, m.SetRunning(time.Now()))
	require.True(t, m.SetSuccess(time.Now(), Outputs{}, prov))
	return m
}

func writes(name, id string) Provenance {
	return Provenance{Read: map[string]string{}, Write: map[string]*datastore.Descriptor{name: desc(id)}}
}

func TestComputeDatabaseState(t *testing.T) {
	t.Run("valid/later-write-wins", func(t *testing.T) {
		m1 := succeeded(t, writes("X", "x1"))
		m2 := succeeded(t, writes("X", "x2"))
		state := ComputeDatabaseState([]*Module{m1, m2}, nil)
		require.Equal(t, "x2", state["X"].ID)
		again := ComputeDatabaseState([]*Module{m1, m2}, nil)
		require.Equal(t, state, again)
		reversed := ComputeDatabaseState([]*Module{m2, m1}, nil)
		require.Equal(t, "x1", reversed["X"].ID)
	})
	t.Run("valid/disjoint-writes-commute", func(t *testing.T) {
		m1 := succeeded(t, writes("A", "a1"))
		m2 := succeeded(t, writes("B", "b1"))
		require.Equal(t, ComputeDatabaseState([]*Module{m1, m2}, nil), ComputeDatabaseState([]*Module{m2, m1}, nil))
	})
	t.Run("valid/only-success-applies", func(t *testing.T) {
		m1 := succeeded(t, writes("A", "a1"))
		failed := NewModule(NewCommand("test", "op", nil), "", Pending)
		require.True(t, failed.SetRunning(time.Now()))
		require.True(t, failed.SetError(time.Now(), Outputs{}))
		pending := NewModule(NewCommand("test", "op", nil), "", Pending)
		state := ComputeDatabaseState([]*Module{m1, failed, pending}, nil)
		require.Equal(t, []string{"A"}, state.Names())
	})
	t.Run("valid/delete-and-seed", func(t *testing.T) {
		seed := DatabaseState{"A": desc("a0"), "B": desc("b0")}
		m := succeeded(t, Provenance{
			Read:   map[string]string{"A": "a0"},
			Write:  map[string]*datastore.Descriptor{},
			Delete: []string{"A", "missing"},
		})
		state := ComputeDatabaseState([]*Module{m}, seed)
		require.Equal(t, []string{"B"}, state.Names())
		require.Equal(t, []string{"A", "B"}, seed.Names())
		require.Equal(t, map[string]string{"B": "b0"}, state.IDs())
	})
}

func TestRequiresExec(t *testing.T) {
	state := DatabaseState{"A": desc("a1"), "B": desc("b1")}
	tests := []struct {
		name string
		prov Provenance
		want bool
	}{
		{"unknown", Provenance{}, true},
		{"unknown/write", Provenance{Read: map[string]string{}}, true},
		{"read/unchanged", Provenance{Read: map[string]string{"A": "a1"}, Write: map[string]*datastore.Descriptor{"A": desc("a2")}}, false},
		{"read/changed", Provenance{Read: map[string]string{"A": "a0"}, Write: map[string]*datastore.Descriptor{}}, true},
		{"read/missing", Provenance{Read: map[string]string{"C": "c1"}, Write: map[string]*datastore.Descriptor{}}, true},
		{"read/no-id", Provenance{Read: map[string]string{"A": ""}, Write: map[string]*datastore.Descriptor{}}, true},
		{"write/failed", Provenance{Read: map[string]string{}, Write: map[string]*datastore.Descriptor{"C": nil}}, true},
		{"write/new-name", Provenance{Read: map[string]string{}, Write: map[string]*datastore.Descriptor{"C": desc("c1")}}, false},
		{"write/shadows-unread", Provenance{Read: map[string]string{}, Write: map[string]*datastore.Descriptor{"B": desc("b2")}}, true},
		{"delete/unread", Provenance{Read: map[string]string{}, Write: map[string]*datastore.Descriptor{}, Delete: []string{"B"}}, true},
		{"delete/read", Provenance{Read: map[string]string{"B": "b1"}, Write: map[string]*datastore.Descriptor{}, Delete: []string{"B"}}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, test.prov.RequiresExec(state))
		})
	}
}
