package project

import (
	"strings"
	"testing"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/vizierobj"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

func TestLifecycle(t *testing.T) {
	ctx := log.Test(t)
	bucket := obj.NewTestBucket(t)
	r, err := Open(ctx, vizierobj.New(bucket, "meta/"), bucket, Options{DatasetCacheSize: 4})
	require.NoError(t, err)
	require.Empty(t, r.List())

	a, err := r.Create(ctx, map[string]string{"name": "a"})
	require.NoError(t, err)
	b, err := r.Create(ctx, map[string]string{"name": "b"})
	require.NoError(t, err)
	_, err = r.Create(ctx, map[string]string{})
	require.Error(t, err)
	require.Equal(t, viztrail.DefaultBranchName, a.Viztrail.DefaultBranch().Name())

	d, err := a.Datastore.CreateDataset(ctx, []datastore.Column{{ID: 0, Name: "x"}}, nil, nil)
	require.NoError(t, err)
	_, err = a.Filestore.Upload(ctx, "data.csv", strings.NewReader("x\n1\n"))
	require.NoError(t, err)
	_, err = b.Datastore.GetDataset(ctx, d.ID)
	require.ErrorAs(t, err, new(*datastore.DatasetNotFoundError), "datastores are per project")

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	require.Same(t, a, got)
	_, err = r.Get("nope")
	require.True(t, viztrail.IsNotFound(err))
	require.Len(t, r.List(), 2)

	require.NoError(t, r.Close())
	_, err = r.Get(a.ID)
	require.ErrorIs(t, err, ErrClosed)

	r, err = Open(ctx, vizierobj.New(bucket, "meta/"), bucket, Options{DatasetCacheSize: 4})
	require.NoError(t, err)
	var names []string
	for _, p := range r.List() {
		names = append(names, p.Viztrail.Name())
	}
	require.ElementsMatch(t, []string{"a", "b"}, names)
	reopened, err := r.Get(a.ID)
	require.NoError(t, err)
	_, err = reopened.Datastore.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	files, err := reopened.Filestore.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, r.Delete(ctx, a.ID))
	require.True(t, viztrail.IsNotFound(r.Delete(ctx, a.ID)))
	keys, err := obj.List(ctx, bucket, "projects/"+a.ID+"/datastore/", false)
	require.NoError(t, err)
	require.Empty(t, keys)
	require.NoError(t, r.Close())

	r, err = Open(ctx, vizierobj.New(bucket, "meta/"), bucket, Options{})
	require.NoError(t, err)
	require.Len(t, r.List(), 1)
	require.Equal(t, b.ID, r.List()[0].ID)
}
