package viztrail

import (
	"time"

	"github.com/vizierdb/vizier/src/internal/uuid"
)

// Action names the edit that created a workflow version.
type Action string

const (
	ActionAppend  Action = "apd"
	ActionCreate  Action = "cre"
	ActionDelete  Action = "del"
	ActionInsert  Action = "ins"
	ActionReplace Action = "upd"
)

// WorkflowDescriptor identifies a workflow version and the edit that produced it.
type WorkflowDescriptor struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	PackageID string    `json:"packageId,omitempty"`
	CommandID string    `json:"commandId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Workflow is one version of a branch: an ordered sequence of modules.  The sequence is never
// changed after creation; modules are shared with other versions.
type Workflow struct {
	Descriptor WorkflowDescriptor
	modules    []*Module
}

// NewWorkflow returns a workflow over modules.  cmd is the command of the triggering edit and may
// be nil.
func NewWorkflow(action Action, cmd *Command, modules []*Module) *Workflow {
	d := WorkflowDescriptor{
		ID:        uuid.NewWithoutDashes(),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
	if cmd != nil {
		d.PackageID = cmd.PackageID
		d.CommandID = cmd.CommandID
	}
	return &Workflow{Descriptor: d, modules: append([]*Module(nil), modules...)}
}

// ID returns the workflow identifier.
func (wf *Workflow) ID() string { return wf.Descriptor.ID }

// Modules returns the module sequence.  The slice is a copy.
func (wf *Workflow) Modules() []*Module {
	if wf == nil {
		return nil
	}
	return append([]*Module(nil), wf.modules...)
}

// Len returns the number of modules.
func (wf *Workflow) Len() int {
	if wf == nil {
		return 0
	}
	return len(wf.modules)
}

// Module returns the module at position i.
func (wf *Workflow) Module(i int) *Module { return wf.modules[i] }

// ModuleIndex returns the position of the module with the given identifier, or -1.
func (wf *Workflow) ModuleIndex(id string) int {
	if wf == nil {
		return -1
	}
	for i, m := range wf.modules {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// IsActive reports whether any module is PENDING or RUNNING.
func (wf *Workflow) IsActive() bool {
	if wf == nil {
		return false
	}
	for _, m := range wf.modules {
		if m.State().IsActive() {
			return true
		}
	}
	return false
}

// HasError reports whether any module is in ERROR or CANCELED state.
func (wf *Workflow) HasError() bool {
	if wf == nil {
		return false
	}
	for _, m := range wf.modules {
		if m.State().IsUnhealthy() {
			return true
		}
	}
	return false
}

// State returns SUCCESS if every module succeeded and otherwise the state of the first module
// that did not.
func (wf *Workflow) State() State {
	if wf == nil {
		return Success
	}
	for _, m := range wf.modules {
		if s := m.State(); s != Success {
			return s
		}
	}
	return Success
}

// DatabaseState returns the state visible to the module at position i.
func (wf *Workflow) DatabaseState(i int) DatabaseState {
	if wf == nil {
		return DatabaseState{}
	}
	return ComputeDatabaseState(wf.modules[:i], nil)
}
