package viztrail

import (
	"testing"
	"time"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/require"
)

func chain(t *testing.T, n int) []*Module {
	var ms []*Module
	for i := 0; i < n; i++ {
		ms = append(ms, succeeded(t, writes("A", string(rune('a'+i)))))
	}
	return ms
}

func TestBranchPublish(t *testing.T) {
	b, err := NewBranch(map[string]string{PropertyName: "main"}, BranchProvenance{})
	require.NoError(t, err)
	head, v := b.Head()
	require.Nil(t, head)
	require.Equal(t, 0, v)

	wf1 := NewWorkflow(ActionAppend, NewCommand("p", "c", nil), chain(t, 1))
	v1, ok := b.Publish(v, wf1)
	require.True(t, ok)
	require.Equal(t, 1, v1)

	// A second edit that read the same HEAD is rejected.
	_, ok = b.Publish(v, NewWorkflow(ActionAppend, nil, nil))
	require.False(t, ok)

	head, v = b.Head()
	require.Same(t, wf1, head)
	require.Equal(t, 1, v)
	require.Len(t, b.History(), 1)
	got, ok := b.GetWorkflow(wf1.ID())
	require.True(t, ok)
	require.Same(t, wf1, got)
	_, ok = b.GetWorkflow("nope")
	require.False(t, ok)
	require.Equal(t, "p", head.Descriptor.PackageID)
}

func TestBranchProperties(t *testing.T) {
	_, err := NewBranch(map[string]string{}, BranchProvenance{})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	_, err = NewBranch(map[string]string{PropertyName: "x"}, BranchProvenance{SourceBranch: "b"})
	require.ErrorAs(t, err, &invalid)

	b, err := NewBranch(map[string]string{PropertyName: "main", "tag": "v1"}, BranchProvenance{})
	require.NoError(t, err)
	require.NoError(t, b.UpdateProperties(map[string]string{"tag": "v2", "owner": "me"}))
	require.Equal(t, map[string]string{PropertyName: "main", "tag": "v2", "owner": "me"}, b.Properties())
	require.NoError(t, b.UpdateProperties(map[string]string{"owner": ""}))
	require.Equal(t, map[string]string{PropertyName: "main", "tag": "v2"}, b.Properties())
	require.ErrorAs(t, b.UpdateProperties(map[string]string{PropertyName: ""}), &invalid)
	require.Equal(t, "main", b.Name())
}

func TestWorkflowQueries(t *testing.T) {
	ms := chain(t, 2)
	pending := NewModule(NewCommand("p", "c", nil), "", Pending)
	wf := NewWorkflow(ActionAppend, nil, append(ms, pending))
	require.True(t, wf.IsActive())
	require.False(t, wf.HasError())
	require.Equal(t, Pending, wf.State())
	require.Equal(t, 2, wf.ModuleIndex(pending.ID))
	require.Equal(t, -1, wf.ModuleIndex("nope"))
	require.Equal(t, "b", wf.DatabaseState(2)["A"].ID)
	require.Equal(t, "a", wf.DatabaseState(1)["A"].ID)
	require.Len(t, wf.DatabaseState(0), 0)

	require.True(t, pending.SetCanceled(time.Now()))
	require.False(t, wf.IsActive())
	require.True(t, wf.HasError())
	require.Equal(t, Canceled, wf.State())

	var empty *Workflow
	require.False(t, empty.IsActive())
	require.Equal(t, 0, empty.Len())
	require.Equal(t, Success, empty.State())
}

func TestCreateBranch(t *testing.T) {
	vt, err := New(map[string]string{PropertyName: "project"})
	require.NoError(t, err)
	main := vt.DefaultBranch()
	require.Equal(t, DefaultBranchName, main.Name())

	ms := chain(t, 10)
	for i := range ms {
		_, v := main.Head()
		_, ok := main.Publish(v, NewWorkflow(ActionAppend, nil, ms[:i+1]))
		require.True(t, ok)
	}
	head, _ := main.Head()

	t.Run("valid/fork-at-module", func(t *testing.T) {
		b, err := vt.CreateBranch(BranchOptions{
			Properties:   map[string]string{PropertyName: "fork"},
			SourceBranch: main.ID,
			WorkflowID:   head.ID(),
			ModuleID:     ms[4].ID,
		})
		require.NoError(t, err)
		fh, _ := b.Head()
		require.Equal(t, ActionCreate, fh.Descriptor.Action)
		require.Equal(t, 5, fh.Len())
		for i := 0; i < 5; i++ {
			require.Same(t, ms[i], fh.Module(i))
		}
		require.False(t, fh.IsActive())
		require.Equal(t, BranchProvenance{SourceBranch: main.ID, WorkflowID: head.ID(), ModuleID: ms[4].ID, CreatedAt: b.Provenance.CreatedAt}, b.Provenance)

		// Appending to the fork leaves the source history alone.
		_, v := b.Head()
		_, ok := b.Publish(v, NewWorkflow(ActionAppend, nil, append(fh.Modules(), NewModule(NewCommand("p", "c", nil), "", Pending))))
		require.True(t, ok)
		require.Len(t, main.History(), 10)
		mh, _ := main.Head()
		require.Equal(t, 10, mh.Len())
	})
	t.Run("valid/fork-head", func(t *testing.T) {
		b, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "copy"}, SourceBranch: main.ID})
		require.NoError(t, err)
		fh, _ := b.Head()
		require.Equal(t, 10, fh.Len())
		require.Equal(t, ms[9].ID, b.Provenance.ModuleID)
	})
	t.Run("valid/empty", func(t *testing.T) {
		b, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "empty"}})
		require.NoError(t, err)
		h, _ := b.Head()
		require.Nil(t, h)
		require.False(t, b.Provenance.IsFork())
	})
	t.Run("invalid/unknown-module", func(t *testing.T) {
		_, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "x"}, SourceBranch: main.ID, ModuleID: "nope"})
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
	t.Run("invalid/unknown-workflow", func(t *testing.T) {
		_, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "x"}, SourceBranch: main.ID, WorkflowID: "nope"})
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
	t.Run("invalid/active-source", func(t *testing.T) {
		active := NewModule(NewCommand("p", "c", nil), "", Pending)
		_, v := main.Head()
		wf := NewWorkflow(ActionAppend, nil, append(ms, active))
		_, ok := main.Publish(v, wf)
		require.True(t, ok)
		_, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "x"}, SourceBranch: main.ID})
		require.True(t, errors.Is(err, ErrWorkflowActive))
		// An earlier, finished version can still be forked.
		_, err = vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "x"}, SourceBranch: main.ID, WorkflowID: head.ID()})
		require.NoError(t, err)
	})
}

func TestDeleteBranch(t *testing.T) {
	vt, err := New(map[string]string{PropertyName: "project"})
	require.NoError(t, err)
	require.True(t, errors.Is(vt.DeleteBranch(vt.DefaultBranch().ID), ErrDefaultBranch))
	require.True(t, IsNotFound(vt.DeleteBranch("nope")))
	b, err := vt.CreateBranch(BranchOptions{Properties: map[string]string{PropertyName: "tmp"}})
	require.NoError(t, err)
	require.Len(t, vt.Branches(), 2)
	require.NoError(t, vt.DeleteBranch(b.ID))
	_, err = vt.GetBranch(b.ID)
	require.True(t, IsNotFound(err))
	def, err := vt.GetBranch("")
	require.NoError(t, err)
	require.Same(t, vt.DefaultBranch(), def)
}
