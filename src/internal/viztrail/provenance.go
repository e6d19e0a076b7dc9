package viztrail

import (
	"sort"

	"github.com/vizierdb/vizier/src/internal/datastore"
)

// Provenance records which named datasets a module read, wrote and deleted.
//
// Read maps a dataset name to the identifier of the snapshot the module observed.  Write maps a
// name to the snapshot the module produced; a nil descriptor marks a write that failed.  A
// provenance whose Read or Write is nil is unknown: the module has to run to find out what it
// touches.  Resources is opaque state a processor keeps across runs of the same module.
type Provenance struct {
	Read      map[string]string                `json:"read"`
	Write     map[string]*datastore.Descriptor `json:"write"`
	Delete    []string                         `json:"delete,omitempty"`
	Resources map[string]interface{}           `json:"resources,omitempty"`
}

// IsKnown reports whether the read and write sets were recorded.
func (p Provenance) IsKnown() bool {
	return p.Read != nil && p.Write != nil
}

// RequiresExec reports whether a module with this provenance has to run again when preceded by
// the given database state.  A module can be skipped only if everything it read resolves to the
// same snapshot as before and nothing it writes or deletes would shadow a dataset it did not
// read.
func (p Provenance) RequiresExec(state DatabaseState) bool {
	if !p.IsKnown() {
		return true
	}
	for name, d := range p.Write {
		if d == nil {
			return true
		}
		if _, exists := state[name]; exists {
			if _, read := p.Read[name]; !read {
				return true
			}
		}
	}
	for _, name := range p.Delete {
		if _, read := p.Read[name]; !read {
			return true
		}
	}
	for name, id := range p.Read {
		d, ok := state[name]
		if !ok || d == nil || id == "" || d.ID != id {
			return true
		}
	}
	return false
}

// Apply applies the writes and deletes of p to state in place.
func (p Provenance) Apply(state DatabaseState) {
	for name, d := range p.Write {
		if d != nil {
			state[name] = d
		}
	}
	for _, name := range p.Delete {
		delete(state, name)
	}
}

// DatabaseState maps dataset names to the snapshot visible under that name.
type DatabaseState map[string]*datastore.Descriptor

// Clone returns a shallow copy of s.
func (s DatabaseState) Clone() DatabaseState {
	out := make(DatabaseState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the dataset names in sorted order.
func (s DatabaseState) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IDs maps each name to its snapshot identifier.
func (s DatabaseState) IDs() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v.ID
	}
	return out
}

// ComputeDatabaseState folds the provenance of modules, in order, over seed.  Only SUCCESS
// modules change the state.  seed is not modified.
func ComputeDatabaseState(modules []*Module, seed DatabaseState) DatabaseState {
	state := seed.Clone()
	for _, m := range modules {
		m.mu.Lock()
		if m.state == Success {
			m.provenance.Apply(state)
		}
		m.mu.Unlock()
	}
	return state
}
