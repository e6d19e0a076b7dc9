package viztrail

import (
	"strings"
	"sync"
	"time"

	"github.com/vizierdb/vizier/src/internal/uuid"
)

// PropertyName is the branch and viztrail property holding the display name.
const PropertyName = "name"

// BranchProvenance records where a branch was forked from.  Either SourceBranch and WorkflowID
// are both set or neither is; ModuleID is the last copied module and is empty when nothing was
// copied.
type BranchProvenance struct {
	SourceBranch string    `json:"sourceBranch,omitempty"`
	WorkflowID   string    `json:"workflowId,omitempty"`
	ModuleID     string    `json:"moduleId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsFork reports whether the branch was created from another branch.
func (p BranchProvenance) IsFork() bool { return p.SourceBranch != "" }

func (p BranchProvenance) validate() error {
	if (p.SourceBranch == "") != (p.WorkflowID == "") {
		return &InvalidArgumentError{Reason: "branch provenance needs both a source branch and a workflow"}
	}
	if p.SourceBranch == "" && p.ModuleID != "" {
		return &InvalidArgumentError{Reason: "branch provenance has a module but no source branch"}
	}
	return nil
}

// Branch is an append-only history of workflow versions.  The last version is HEAD.
//
// HEAD advances by compare-and-swap: Head returns the version it was read at and Publish only
// succeeds if no other version was published in between.
type Branch struct {
	ID         string
	Provenance BranchProvenance
	CreatedAt  time.Time

	mu         sync.RWMutex
	properties map[string]string
	history    []*Workflow
}

// NewBranch returns an empty branch.
func NewBranch(props map[string]string, prov BranchProvenance) (*Branch, error) {
	if err := prov.validate(); err != nil {
		return nil, err
	}
	if err := validateName(props); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if prov.CreatedAt.IsZero() {
		prov.CreatedAt = now
	}
	return &Branch{
		ID:         uuid.NewWithoutDashes(),
		Provenance: prov,
		CreatedAt:  now,
		properties: copyProps(props),
	}, nil
}

func validateName(props map[string]string) error {
	if strings.TrimSpace(props[PropertyName]) == "" {
		return &InvalidArgumentError{Reason: "missing or empty name"}
	}
	return nil
}

func copyProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// Name returns the branch name.
func (b *Branch) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.properties[PropertyName]
}

// Properties returns a copy of the branch properties.
func (b *Branch) Properties() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyProps(b.properties)
}

// UpdateProperties sets each given property; an empty value removes the key.  The name cannot be
// removed.
func (b *Branch) UpdateProperties(props map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := copyProps(b.properties)
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
	b.properties = next
	return nil
}

// Head returns the HEAD workflow, nil for a branch without workflows, and the version it was
// read at.
func (b *Branch) Head() (*Workflow, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v := len(b.history)
	if v == 0 {
		return nil, 0
	}
	return b.history[v-1], v
}

// Publish appends wf to the history if HEAD is still at version.  It returns the new version,
// or false if another workflow was published first.
func (b *Branch) Publish(version int, wf *Workflow) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) != version {
		return 0, false
	}
	b.history = append(b.history, wf)
	return len(b.history), true
}

// History returns every workflow version, oldest first.
func (b *Branch) History() []*Workflow {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Workflow(nil), b.history...)
}

// GetWorkflow returns the version with the given identifier.  An empty identifier means HEAD.
func (b *Branch) GetWorkflow(id string) (*Workflow, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id == "" {
		if len(b.history) == 0 {
			return nil, false
		}
		return b.history[len(b.history)-1], true
	}
	for _, wf := range b.history {
		if wf.ID() == id {
			return wf, true
		}
	}
	return nil, false
}
