package viztrail

import (
	"sync"
	"time"

	"github.com/vizierdb/vizier/src/internal/uuid"
)

// Timestamp records when a module was created, started and finished.
type Timestamp struct {
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Module is one step of a workflow: a command and the result of running it.
//
// The identifier, command and external form never change.  State, outputs, provenance and
// timestamps change only through the Set methods, which enforce the state machine and ignore
// any change to a module that already reached a terminal state.
type Module struct {
	ID           string
	Command      *Command
	ExternalForm string

	mu         sync.Mutex
	state      State
	revision   uint64
	outputs    Outputs
	provenance Provenance
	timestamp  Timestamp

	writeMu sync.Mutex
}

// NewModule returns a module in the given state, created now.
func NewModule(cmd *Command, externalForm string, state State) *Module {
	now := time.Now().UTC()
	m := &Module{
		ID:           uuid.NewWithoutDashes(),
		Command:      cmd,
		ExternalForm: externalForm,
		state:        state,
		timestamp:    Timestamp{CreatedAt: now},
	}
	if state.IsTerminal() {
		m.timestamp.FinishedAt = &now
	}
	return m
}

// NewCompletedModule returns a module that was executed synchronously before being added to a
// workflow.
func NewCompletedModule(cmd *Command, externalForm string, state State, outputs Outputs, prov Provenance, started, finished time.Time) *Module {
	m := NewModule(cmd, externalForm, state)
	m.outputs = outputs
	m.provenance = prov
	m.timestamp.CreatedAt = started
	m.timestamp.StartedAt = &started
	m.timestamp.FinishedAt = &finished
	return m
}

// Rerun returns a new PENDING module for the same command that remembers m's outputs and
// provenance, so that it can be reused without running if nothing it read has changed.
func (m *Module) Rerun() *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Module{
		ID:           uuid.NewWithoutDashes(),
		Command:      m.Command,
		ExternalForm: m.ExternalForm,
		state:        Pending,
		outputs:      m.outputs.Clone(),
		provenance:   m.provenance,
		timestamp:    Timestamp{CreatedAt: time.Now().UTC()},
	}
}

// State returns the current state.
func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Outputs returns the current outputs.
func (m *Module) Outputs() Outputs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs.Clone()
}

// Provenance returns the current provenance.
func (m *Module) Provenance() Provenance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provenance
}

// Revision counts the state changes of m.  A record with a higher revision is newer.
func (m *Module) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// WriteRecord calls write with the record of m.  Calls for the same module do not overlap, so a
// record that is written last was taken last.
func (m *Module) WriteRecord(write func(ModuleRecord) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return write(m.Record())
}

// Timestamp returns the module's timestamps.
func (m *Module) Timestamp() Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timestamp
}

func (m *Module) transition(to State, at time.Time, f func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isAllowedTransition(m.state, to) {
		return false
	}
	m.state = to
	m.revision++
	at = at.UTC()
	if to == Running {
		m.timestamp.StartedAt = &at
	} else {
		m.timestamp.FinishedAt = &at
	}
	if f != nil {
		f()
	}
	return true
}

// SetRunning moves a PENDING module to RUNNING.  Outputs of an earlier run are cleared.
func (m *Module) SetRunning(at time.Time) bool {
	return m.transition(Running, at, func() {
		m.outputs = Outputs{}
	})
}

// SetSuccess moves a RUNNING module to SUCCESS with the given result.
func (m *Module) SetSuccess(at time.Time, outputs Outputs, prov Provenance) bool {
	if m.State() != Running {
		return false
	}
	return m.transition(Success, at, func() {
		m.outputs = outputs
		m.provenance = prov
	})
}

// SetError moves a RUNNING module to ERROR.  The provenance of a failed module is unknown.
func (m *Module) SetError(at time.Time, outputs Outputs) bool {
	return m.transition(Error, at, func() {
		m.outputs = outputs
		m.provenance = Provenance{Resources: m.provenance.Resources}
	})
}

// SetCanceled moves a PENDING or RUNNING module to CANCELED.
func (m *Module) SetCanceled(at time.Time) bool {
	return m.transition(Canceled, at, nil)
}

// Reuse moves a PENDING module to SUCCESS keeping the outputs and provenance of its earlier run.
func (m *Module) Reuse(at time.Time) bool {
	if m.State() != Pending {
		return false
	}
	return m.transition(Success, at, nil)
}

// Replacement returns a new PENDING module for cmd that inherits the resources of m's last run.
func (m *Module) Replacement(cmd *Command, externalForm string) *Module {
	r := NewModule(cmd, externalForm, Pending)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.provenance.Resources) > 0 {
		r.provenance = Provenance{Resources: m.provenance.Resources}
	}
	return r
}
