package viztrail

import (
	"context"
	"time"

	"github.com/vizierdb/vizier/src/internal/errors"
)

// ModuleRecord is the persisted form of a module.
type ModuleRecord struct {
	ID           string     `json:"id"`
	Command      *Command   `json:"command"`
	ExternalForm string     `json:"externalForm"`
	State        State      `json:"state"`
	Revision     uint64     `json:"revision"`
	Outputs      Outputs    `json:"outputs"`
	Provenance   Provenance `json:"provenance"`
	Timestamp    Timestamp  `json:"timestamp"`
}

// Record returns the persisted form of m.
func (m *Module) Record() ModuleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ModuleRecord{
		ID:           m.ID,
		Command:      m.Command,
		ExternalForm: m.ExternalForm,
		State:        m.state,
		Revision:     m.revision,
		Outputs:      m.outputs.Clone(),
		Provenance:   m.provenance,
		Timestamp:    m.timestamp,
	}
}

// RestoreModule rebuilds a module from its persisted form.  A module persisted as RUNNING stays
// RUNNING; nothing restarts it.
func RestoreModule(r ModuleRecord) *Module {
	return &Module{
		ID:           r.ID,
		Command:      r.Command,
		ExternalForm: r.ExternalForm,
		state:        r.State,
		revision:     r.Revision,
		outputs:      r.Outputs,
		provenance:   r.Provenance,
		timestamp:    r.Timestamp,
	}
}

// WorkflowRecord is the persisted form of a workflow version.
type WorkflowRecord struct {
	WorkflowDescriptor
	Modules []string `json:"modules"`
}

// Record returns the persisted form of wf.
func (wf *Workflow) Record() WorkflowRecord {
	ids := make([]string, len(wf.modules))
	for i, m := range wf.modules {
		ids[i] = m.ID
	}
	return WorkflowRecord{WorkflowDescriptor: wf.Descriptor, Modules: ids}
}

// BranchRecord is the persisted form of a branch, without its history.
type BranchRecord struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Provenance BranchProvenance  `json:"provenance"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Record returns the persisted form of b.
func (b *Branch) Record() BranchRecord {
	return BranchRecord{
		ID:         b.ID,
		Properties: b.Properties(),
		Provenance: b.Provenance,
		CreatedAt:  b.CreatedAt,
	}
}

// ViztrailRecord is the persisted form of a viztrail, without its branches.
type ViztrailRecord struct {
	ID            string            `json:"id"`
	Properties    map[string]string `json:"properties"`
	CreatedAt     time.Time         `json:"createdAt"`
	DefaultBranch string            `json:"defaultBranch"`
}

// Record returns the persisted form of vt.
func (vt *Viztrail) Record() ViztrailRecord {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return ViztrailRecord{
		ID:            vt.ID,
		Properties:    copyProps(vt.properties),
		CreatedAt:     vt.CreatedAt,
		DefaultBranch: vt.defaultBranch,
	}
}

// BranchHistory is a branch record with its workflow versions, oldest first.
type BranchHistory struct {
	Branch    BranchRecord
	Workflows []WorkflowRecord
}

// Rebuild reconstructs a viztrail from persisted records.  Every module identifier resolves to a
// single shared module object, so versions that shared a module before persisting share it
// again.
func Rebuild(vt ViztrailRecord, branches []BranchHistory, modules map[string]ModuleRecord) (*Viztrail, error) {
	objects := make(map[string]*Module, len(modules))
	resolve := func(id string) (*Module, error) {
		if m, ok := objects[id]; ok {
			return m, nil
		}
		r, ok := modules[id]
		if !ok {
			return nil, errors.Errorf("viztrail %s references missing module %s", vt.ID, id)
		}
		m := RestoreModule(r)
		objects[id] = m
		return m, nil
	}
	result := &Viztrail{
		ID:            vt.ID,
		CreatedAt:     vt.CreatedAt,
		properties:    copyProps(vt.Properties),
		branches:      make(map[string]*Branch, len(branches)),
		defaultBranch: vt.DefaultBranch,
	}
	for _, bh := range branches {
		b := &Branch{
			ID:         bh.Branch.ID,
			Provenance: bh.Branch.Provenance,
			CreatedAt:  bh.Branch.CreatedAt,
			properties: copyProps(bh.Branch.Properties),
		}
		for _, wr := range bh.Workflows {
			wf := &Workflow{Descriptor: wr.WorkflowDescriptor}
			for _, id := range wr.Modules {
				m, err := resolve(id)
				if err != nil {
					return nil, err
				}
				wf.modules = append(wf.modules, m)
			}
			b.history = append(b.history, wf)
		}
		result.branches[b.ID] = b
	}
	if _, ok := result.branches[result.defaultBranch]; !ok {
		return nil, errors.Errorf("viztrail %s has no default branch %s", vt.ID, vt.DefaultBranch)
	}
	return result, nil
}

// Store persists viztrails.  Writes are idempotent: writing the same object twice leaves the
// store as if it had been written once.
type Store interface {
	// ListViztrails returns the identifiers of every stored viztrail.
	ListViztrails(ctx context.Context) ([]string, error)
	// LoadViztrail reads a viztrail with all branches, workflow versions and modules.
	LoadViztrail(ctx context.Context, id string) (*Viztrail, error)
	// CreateViztrail writes a new viztrail with everything it contains.
	CreateViztrail(ctx context.Context, vt *Viztrail) error
	// DeleteViztrail removes a viztrail and everything it contains.
	DeleteViztrail(ctx context.Context, id string) error
	// WriteViztrail updates the viztrail's properties and default branch.
	WriteViztrail(ctx context.Context, vt *Viztrail) error
	// WriteBranch writes a branch record and its full history.
	WriteBranch(ctx context.Context, vtID string, b *Branch) error
	// DeleteBranch removes a branch and its history.  Modules shared with other branches
	// remain.
	DeleteBranch(ctx context.Context, vtID, branchID string) error
	// WriteWorkflow writes the workflow version at position seq (0-based) of a branch's
	// history, and every module it references.
	WriteWorkflow(ctx context.Context, vtID, branchID string, seq int, wf *Workflow) error
	// WriteModule writes the current state of a module.
	WriteModule(ctx context.Context, vtID string, m *Module) error
	// Close releases the store's resources.
	Close() error
}
