package vizierobj

import (
	"testing"
	"time"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"golang.org/x/sync/errgroup"
)

func completed(name string, state viztrail.State, read map[string]string, write map[string]*datastore.Descriptor) *viztrail.Module {
	cmd := viztrail.NewCommand("vizual", name, viztrail.Record{"dataset": viztrail.String("X"), "row": viztrail.Int(1)})
	outputs := viztrail.Outputs{Stdout: []viztrail.OutputObject{viztrail.TextOutput(name)}}
	prov := viztrail.Provenance{Read: read, Write: write, Resources: map[string]interface{}{"cache": name}}
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return viztrail.NewCompletedModule(cmd, name+" X", state, outputs, prov, start, start.Add(time.Second))
}

func records(wf *viztrail.Workflow) []viztrail.ModuleRecord {
	var result []viztrail.ModuleRecord
	for _, m := range wf.Modules() {
		result = append(result, m.Record())
	}
	return result
}

// testViztrail returns a viztrail whose default branch has three versions and a fork of the
// second version, plus a module left RUNNING.
func testViztrail(t *testing.T) *viztrail.Viztrail {
	vt, err := viztrail.New(map[string]string{"name": "roundtrip"})
	require.NoError(t, err)
	x1 := &datastore.Descriptor{ID: "x1", Columns: []datastore.Column{{ID: 0, Name: "A"}}, RowCount: 2}
	x2 := &datastore.Descriptor{ID: "x2", Columns: []datastore.Column{{ID: 0, Name: "A"}}, RowCount: 3}
	load := completed("load", viztrail.Success, map[string]string{}, map[string]*datastore.Descriptor{"X": x1})
	update := completed("update", viztrail.Success, map[string]string{"X": "x1"}, map[string]*datastore.Descriptor{"X": x2})
	broken := completed("broken", viztrail.Error, nil, nil)

	b := vt.DefaultBranch()
	_, ok := b.Publish(0, viztrail.NewWorkflow(viztrail.ActionAppend, load.Command, []*viztrail.Module{load}))
	require.True(t, ok)
	_, ok = b.Publish(1, viztrail.NewWorkflow(viztrail.ActionAppend, update.Command, []*viztrail.Module{load, update}))
	require.True(t, ok)
	running := viztrail.NewModule(update.Command, "running", viztrail.Pending)
	require.True(t, running.SetRunning(time.Now()))
	_, ok = b.Publish(2, viztrail.NewWorkflow(viztrail.ActionAppend, nil, []*viztrail.Module{load, update, broken, running}))
	require.True(t, ok)

	history := b.History()
	_, err = vt.CreateBranch(viztrail.BranchOptions{
		Properties:   map[string]string{"name": "fork"},
		SourceBranch: b.ID,
		WorkflowID:   history[1].ID(),
	})
	require.NoError(t, err)
	return vt
}

func TestRoundTrip(t *testing.T) {
	ctx := log.Test(t)
	s := New(obj.NewTestBucket(t), "vizier/")
	vt := testViztrail(t)
	require.NoError(t, s.CreateViztrail(ctx, vt))

	ids, err := s.ListViztrails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{vt.ID}, ids)

	got, err := s.LoadViztrail(ctx, vt.ID)
	require.NoError(t, err)
	require.Equal(t, vt.Record(), got.Record())
	require.Len(t, got.Branches(), 2)
	for _, want := range vt.Branches() {
		b, err := got.GetBranch(want.ID)
		require.NoError(t, err)
		require.Equal(t, want.Record(), b.Record())
		wantHistory, gotHistory := want.History(), b.History()
		require.Len(t, gotHistory, len(wantHistory))
		for i := range wantHistory {
			require.Equal(t, wantHistory[i].Record(), gotHistory[i].Record())
			require.NoDiff(t, records(wantHistory[i]), records(gotHistory[i]), nil)
		}
		wantHead, _ := want.Head()
		gotHead, _ := b.Head()
		require.Equal(t, wantHead.IsActive(), gotHead.IsActive())
		require.NoDiff(t, wantHead.DatabaseState(wantHead.Len()), gotHead.DatabaseState(gotHead.Len()), nil)
	}

	// Versions that shared module objects before persisting share them again.
	def := got.DefaultBranch()
	history := def.History()
	require.Same(t, history[0].Module(0), history[2].Module(0))
	fork, err := got.GetBranch(got.Branches()[1].ID)
	require.NoError(t, err)
	if fork.ID == def.ID {
		fork, err = got.GetBranch(got.Branches()[0].ID)
		require.NoError(t, err)
	}
	forkHead, _ := fork.Head()
	require.Same(t, history[1].Module(1), forkHead.Module(1))

	// A module persisted as RUNNING is still RUNNING and keeps HEAD active.
	head, _ := def.Head()
	require.Equal(t, viztrail.Running, head.Module(3).State())
	require.True(t, head.IsActive())
	require.False(t, forkHead.IsActive())
}

func TestWriteModuleAndWorkflow(t *testing.T) {
	ctx := log.Test(t)
	s := New(obj.NewTestBucket(t), "")
	vt := testViztrail(t)
	require.NoError(t, s.CreateViztrail(ctx, vt))

	b := vt.DefaultBranch()
	head, version := b.Head()
	m := head.Module(3)
	require.True(t, m.SetCanceled(time.Now()))
	require.NoError(t, s.WriteModule(ctx, vt.ID, m))
	next := viztrail.NewWorkflow(viztrail.ActionDelete, nil, head.Modules()[:2])
	_, ok := b.Publish(version, next)
	require.True(t, ok)
	require.NoError(t, s.WriteWorkflow(ctx, vt.ID, b.ID, version, next))
	require.NoError(t, vt.UpdateProperties(map[string]string{"owner": "me"}))
	require.NoError(t, s.WriteViztrail(ctx, vt))

	got, err := s.LoadViztrail(ctx, vt.ID)
	require.NoError(t, err)
	require.Equal(t, "me", got.Properties()["owner"])
	gb, err := got.GetBranch(b.ID)
	require.NoError(t, err)
	require.Len(t, gb.History(), 4)
	gotHead, _ := gb.Head()
	require.Equal(t, next.ID(), gotHead.ID())
	previous := gb.History()[2]
	require.Equal(t, viztrail.Canceled, previous.Module(3).State())
}

func TestConcurrentModuleWrites(t *testing.T) {
	ctx := log.Test(t)
	s := New(obj.NewTestBucket(t), "")
	vt := testViztrail(t)
	require.NoError(t, s.CreateViztrail(ctx, vt))
	b := vt.DefaultBranch()
	head, version := b.Head()
	modules := append([]*viztrail.Module(nil), head.Modules()[:2]...)
	var added []*viztrail.Module
	for i := 0; i < 10; i++ {
		m := viztrail.NewModule(viztrail.NewCommand("vizual", "emptyDataset", nil), "emptyDataset", viztrail.Pending)
		added = append(added, m)
		modules = append(modules, m)
	}
	wf := viztrail.NewWorkflow(viztrail.ActionAppend, nil, modules)
	_, ok := b.Publish(version, wf)
	require.True(t, ok)

	// The workflow is written over and over while its modules run and finish.
	var eg errgroup.Group
	eg.Go(func() error {
		for i := 0; i < 5; i++ {
			if err := s.WriteWorkflow(ctx, vt.ID, b.ID, version, wf); err != nil {
				return err
			}
		}
		return nil
	})
	eg.Go(func() error {
		for _, m := range added {
			m.SetRunning(time.Now())
			if err := s.WriteModule(ctx, vt.ID, m); err != nil {
				return err
			}
			m.SetSuccess(time.Now(), viztrail.Outputs{}, viztrail.Provenance{})
			if err := s.WriteModule(ctx, vt.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, eg.Wait())
	got, err := s.LoadViztrail(ctx, vt.ID)
	require.NoError(t, err)
	gotHead, _ := got.DefaultBranch().Head()
	require.False(t, gotHead.IsActive())
	for i, m := range added {
		require.Equal(t, viztrail.Success, gotHead.Module(i+2).State())
		require.Equal(t, m.Revision(), gotHead.Module(i+2).Revision())
	}
}

func TestDelete(t *testing.T) {
	ctx := log.Test(t)
	bucket := obj.NewTestBucket(t)
	s := New(bucket, "")
	vt := testViztrail(t)
	require.NoError(t, s.CreateViztrail(ctx, vt))
	other, err := viztrail.New(map[string]string{"name": "other"})
	require.NoError(t, err)
	require.NoError(t, s.CreateViztrail(ctx, other))

	var forkID string
	for _, b := range vt.Branches() {
		if b.ID != vt.DefaultBranch().ID {
			forkID = b.ID
		}
	}
	require.NoError(t, s.DeleteBranch(ctx, vt.ID, forkID))
	require.NoError(t, vt.DeleteBranch(forkID))
	got, err := s.LoadViztrail(ctx, vt.ID)
	require.NoError(t, err)
	require.Len(t, got.Branches(), 1)
	// Modules shared with the deleted branch are still there for the default branch.
	head, _ := got.DefaultBranch().Head()
	require.Equal(t, 4, head.Len())

	require.NoError(t, s.DeleteViztrail(ctx, vt.ID))
	ids, err := s.ListViztrails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{other.ID}, ids)
	_, err = s.LoadViztrail(ctx, vt.ID)
	require.True(t, viztrail.IsNotFound(err))
	keys, err := obj.List(ctx, bucket, "viztrails/"+vt.ID+"/", false)
	require.NoError(t, err)
	require.Empty(t, keys)
}
