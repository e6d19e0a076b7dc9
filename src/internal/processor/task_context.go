package processor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/filestore"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// UnknownDatasetError is returned when a command names a dataset that is not visible to it.
type UnknownDatasetError struct {
	Name string
}

func (err *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q", err.Name)
}

// TaskContext is the environment one module executes in.  Datasets are looked up by name in the
// database state preceding the module; every access is recorded and becomes the module's
// provenance.
type TaskContext struct {
	ProjectID string
	ModuleID  string
	Datastore datastore.Datastore
	Filestore *filestore.Filestore
	// Resources are the resources of the previous execution of this module, if any.  Processors
	// may read and replace them.
	Resources map[string]interface{}

	mu      sync.Mutex
	state   viztrail.DatabaseState
	reads   map[string]string
	writes  map[string]*datastore.Descriptor
	deletes map[string]bool
	outputs viztrail.Outputs
}

// NewTaskContext returns a task context over the given database state.  state is not modified.
func NewTaskContext(projectID, moduleID string, ds datastore.Datastore, fs *filestore.Filestore, state viztrail.DatabaseState, resources map[string]interface{}) *TaskContext {
	res := make(map[string]interface{}, len(resources))
	for k, v := range resources {
		res[k] = v
	}
	return &TaskContext{
		ProjectID: projectID,
		ModuleID:  moduleID,
		Datastore: ds,
		Filestore: fs,
		Resources: res,
		state:     state.Clone(),
		reads:     make(map[string]string),
		writes:    make(map[string]*datastore.Descriptor),
		deletes:   make(map[string]bool),
	}
}

// Names returns the names of the datasets currently visible, in sorted order.
func (tc *TaskContext) Names() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state.Names()
}

// Exists reports whether a dataset is visible under name.  The check counts as a read.
func (tc *TaskContext) Exists(name string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	d, ok := tc.state[name]
	tc.recordRead(name, d)
	return ok
}

// recordRead notes that name was observed, unless this task produced the value itself.
func (tc *TaskContext) recordRead(name string, d *datastore.Descriptor) {
	if _, written := tc.writes[name]; written || tc.deletes[name] {
		return
	}
	if _, seen := tc.reads[name]; seen {
		return
	}
	if d == nil {
		tc.reads[name] = ""
		return
	}
	tc.reads[name] = d.ID
}

// Descriptor returns the descriptor of the named dataset.
func (tc *TaskContext) Descriptor(name string) (*datastore.Descriptor, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	d, ok := tc.state[name]
	tc.recordRead(name, d)
	if !ok || d == nil {
		return nil, &UnknownDatasetError{Name: name}
	}
	return d, nil
}

// Dataset returns the named dataset.
func (tc *TaskContext) Dataset(ctx context.Context, name string) (*datastore.Dataset, error) {
	d, err := tc.Descriptor(name)
	if err != nil {
		return nil, err
	}
	ds, err := tc.Datastore.GetDataset(ctx, d.ID)
	return ds, errors.Wrapf(err, "read dataset %q", name)
}

// Create stores a new snapshot and makes it visible under name.
func (tc *TaskContext) Create(ctx context.Context, name string, columns []datastore.Column, rows []datastore.Row, annotations []datastore.Annotation) (*datastore.Descriptor, error) {
	d, err := tc.Datastore.CreateDataset(ctx, columns, rows, annotations)
	if err != nil {
		return nil, errors.Wrapf(err, "create dataset %q", name)
	}
	tc.Write(name, d)
	return d, nil
}

// Write makes an existing snapshot visible under name.
func (tc *TaskContext) Write(name string, d *datastore.Descriptor) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.deletes, name)
	tc.writes[name] = d
	tc.state[name] = d
}

// Drop removes the named dataset.  Dropping counts as a read of the dropped snapshot.
func (tc *TaskContext) Drop(name string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	d, ok := tc.state[name]
	tc.recordRead(name, d)
	if !ok {
		return &UnknownDatasetError{Name: name}
	}
	delete(tc.writes, name)
	delete(tc.state, name)
	tc.deletes[name] = true
	return nil
}

// Rename moves the named dataset to a new name.
func (tc *TaskContext) Rename(from, to string) error {
	d, err := tc.Descriptor(from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	tc.mu.Lock()
	_, exists := tc.state[to]
	tc.mu.Unlock()
	if exists {
		return errors.Errorf("dataset %q already exists", to)
	}
	if err := tc.Drop(from); err != nil {
		return err
	}
	tc.Write(to, d)
	return nil
}

// File opens an uploaded file.
func (tc *TaskContext) File(ctx context.Context, id string) (*filestore.FileHandle, io.ReadCloser, error) {
	if tc.Filestore == nil {
		return nil, nil, errors.New("no filestore available")
	}
	h, err := tc.Filestore.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := tc.Filestore.Open(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return h, r, nil
}

// Print appends text to stdout.
func (tc *TaskContext) Print(s string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.outputs.Print(s)
}

// Output appends an output object to stdout.
func (tc *TaskContext) Output(o viztrail.OutputObject) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.outputs.Stdout = append(tc.outputs.Stdout, o)
}

// Outputs returns what the task has produced so far.
func (tc *TaskContext) Outputs() viztrail.Outputs {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.outputs.Clone()
}

// Provenance returns the datasets read, written and deleted so far, together with the current
// resources.
func (tc *TaskContext) Provenance() viztrail.Provenance {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	p := viztrail.Provenance{
		Read:  make(map[string]string, len(tc.reads)),
		Write: make(map[string]*datastore.Descriptor, len(tc.writes)),
	}
	for k, v := range tc.reads {
		p.Read[k] = v
	}
	for k, v := range tc.writes {
		p.Write[k] = v
	}
	for k := range tc.deletes {
		p.Delete = append(p.Delete, k)
	}
	sort.Strings(p.Delete)
	if len(tc.Resources) > 0 {
		p.Resources = make(map[string]interface{}, len(tc.Resources))
		for k, v := range tc.Resources {
			p.Resources[k] = v
		}
	}
	return p
}

// Success returns a *Success with the task's outputs and provenance.
func (tc *TaskContext) Success() *Success {
	return &Success{Outputs: tc.Outputs(), Provenance: tc.Provenance()}
}

// Failure returns a *Failure with the task's outputs and err on stderr.
func (tc *TaskContext) Failure(err error) *Failure {
	return Fail(tc.Outputs(), err)
}
