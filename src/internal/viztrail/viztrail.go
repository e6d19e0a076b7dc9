// Package viztrail holds the versioned model of a vizier project: modules and their provenance,
// workflow versions, branches and the viztrail that owns them.
package viztrail

import (
	"sort"
	"sync"
	"time"

	"github.com/vizierdb/vizier/src/internal/uuid"
)

// DefaultBranchName is the name of the branch created with every viztrail.
const DefaultBranchName = "Default"

// Viztrail is the set of branches of one project.  Exactly one branch is the default branch.
type Viztrail struct {
	ID        string
	CreatedAt time.Time

	mu            sync.RWMutex
	properties    map[string]string
	branches      map[string]*Branch
	defaultBranch string
}

// New returns a viztrail with an empty default branch.
func New(props map[string]string) (*Viztrail, error) {
	if err := validateName(props); err != nil {
		return nil, err
	}
	b, err := NewBranch(map[string]string{PropertyName: DefaultBranchName}, BranchProvenance{})
	if err != nil {
		return nil, err
	}
	return &Viztrail{
		ID:            uuid.NewWithoutDashes(),
		CreatedAt:     time.Now().UTC(),
		properties:    copyProps(props),
		branches:      map[string]*Branch{b.ID: b},
		defaultBranch: b.ID,
	}, nil
}

// Name returns the viztrail name.
func (vt *Viztrail) Name() string {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.properties[PropertyName]
}

// Properties returns a copy of the viztrail properties.
func (vt *Viztrail) Properties() map[string]string {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return copyProps(vt.properties)
}

// UpdateProperties sets each given property; an empty value removes the key.
func (vt *Viztrail) UpdateProperties(props map[string]string) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	next := copyProps(vt.properties)
	for k, v := range props {
		if v == "" {
			delete(next, k)
		} else {
			next[k] = v
		}
	}
	if err := validateName(next); err != nil {
		return err
	}
	vt.properties = next
	return nil
}

// DefaultBranch returns the default branch.
func (vt *Viztrail) DefaultBranch() *Branch {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.branches[vt.defaultBranch]
}

// SetDefaultBranch makes the given branch the default.
func (vt *Viztrail) SetDefaultBranch(id string) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if _, ok := vt.branches[id]; !ok {
		return &NotFoundError{Kind: "branch", ID: id}
	}
	vt.defaultBranch = id
	return nil
}

// GetBranch returns the branch with the given identifier.  An empty identifier means the
// default branch.
func (vt *Viztrail) GetBranch(id string) (*Branch, error) {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	if id == "" {
		id = vt.defaultBranch
	}
	b, ok := vt.branches[id]
	if !ok {
		return nil, &NotFoundError{Kind: "branch", ID: id}
	}
	return b, nil
}

// Branches returns every branch, oldest first.
func (vt *Viztrail) Branches() []*Branch {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	result := make([]*Branch, 0, len(vt.branches))
	for _, b := range vt.branches {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// BranchOptions describes a new branch.
type BranchOptions struct {
	Properties map[string]string
	// SourceBranch is the branch to fork.  Empty creates an empty branch.
	SourceBranch string
	// WorkflowID selects the source version.  Empty means the source HEAD.
	WorkflowID string
	// ModuleID is the last module to copy.  Empty copies the whole workflow.
	ModuleID string
}

// CreateBranch adds a branch.  A fork shares the copied module objects with the source and
// starts with one CREATE workflow; nothing is re-executed.
func (vt *Viztrail) CreateBranch(opts BranchOptions) (*Branch, error) {
	if opts.SourceBranch == "" {
		if opts.WorkflowID != "" || opts.ModuleID != "" {
			return nil, &InvalidArgumentError{Reason: "workflow or module given without a source branch"}
		}
		b, err := NewBranch(opts.Properties, BranchProvenance{})
		if err != nil {
			return nil, err
		}
		vt.addBranch(b)
		return b, nil
	}
	source, err := vt.GetBranch(opts.SourceBranch)
	if err != nil {
		return nil, &InvalidArgumentError{Reason: "unknown source branch " + opts.SourceBranch}
	}
	wf, ok := source.GetWorkflow(opts.WorkflowID)
	if !ok {
		return nil, &InvalidArgumentError{Reason: "unknown workflow " + opts.WorkflowID}
	}
	if wf.IsActive() {
		return nil, ErrWorkflowActive
	}
	modules := wf.Modules()
	if opts.ModuleID != "" {
		i := wf.ModuleIndex(opts.ModuleID)
		if i < 0 {
			return nil, &InvalidArgumentError{Reason: "unknown module " + opts.ModuleID}
		}
		modules = modules[:i+1]
	}
	prov := BranchProvenance{SourceBranch: source.ID, WorkflowID: wf.ID()}
	if len(modules) > 0 {
		prov.ModuleID = modules[len(modules)-1].ID
	}
	b, err := NewBranch(opts.Properties, prov)
	if err != nil {
		return nil, err
	}
	b.Publish(0, NewWorkflow(ActionCreate, nil, modules))
	vt.addBranch(b)
	return b, nil
}

func (vt *Viztrail) addBranch(b *Branch) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	vt.branches[b.ID] = b
}

// DeleteBranch removes a branch.  The default branch cannot be deleted.
func (vt *Viztrail) DeleteBranch(id string) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if _, ok := vt.branches[id]; !ok {
		return &NotFoundError{Kind: "branch", ID: id}
	}
	if id == vt.defaultBranch {
		return ErrDefaultBranch
	}
	delete(vt.branches, id)
	return nil
}
