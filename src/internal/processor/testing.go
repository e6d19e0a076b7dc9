package processor

import (
	"testing"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/filestore"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/uuid"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// NewTestContext returns a task context backed by an in-memory bucket.
func NewTestContext(t testing.TB, state viztrail.DatabaseState) *TaskContext {
	t.Helper()
	bucket := obj.NewTestBucket(t)
	ds, err := datastore.NewBucketStore(bucket, "datastore/", 16)
	if err != nil {
		t.Fatalf("datastore: %v", err)
	}
	return NewTaskContext("test", uuid.NewWithoutDashes(), ds, filestore.New(bucket, "filestore/"), state, nil)
}

// Chain returns a task context whose datastore and filestore are shared with prev, seeded with
// the database state prev left behind.
func Chain(prev *TaskContext, moduleID string) *TaskContext {
	prev.mu.Lock()
	state := prev.state.Clone()
	prev.mu.Unlock()
	return NewTaskContext(prev.ProjectID, moduleID, prev.Datastore, prev.Filestore, state, nil)
}
