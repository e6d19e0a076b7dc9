package obj

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vizierdb/vizier/src/internal/require"
)

type record struct {
	Name string `json:"name"`
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewTestBucket(t)
	require.NoError(t, WriteJSON(ctx, b, "a/one.json", record{Name: "one"}))
	require.NoError(t, WriteJSON(ctx, b, "a/two.json", record{Name: "two"}))
	require.NoError(t, WriteJSON(ctx, b, "a/sub/three.json", record{Name: "three"}))

	var r record
	require.NoError(t, ReadJSON(ctx, b, "a/two.json", &r))
	require.Equal(t, "two", r.Name)

	err := ReadJSON(ctx, b, "a/missing.json", &r)
	require.True(t, IsNotExist(err), "got %v", err)

	files, err := List(ctx, b, "a/", false)
	require.NoError(t, err)
	require.Equal(t, []string{"a/one.json", "a/two.json"}, files)
	dirs, err := List(ctx, b, "a/", true)
	require.NoError(t, err)
	require.Equal(t, []string{"a/sub/"}, dirs)

	require.NoError(t, DeletePrefix(ctx, b, "a/"))
	files, err = List(ctx, b, "a/", false)
	require.NoError(t, err)
	require.Len(t, files, 0)
}

func TestNewBucket(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "store")
	b, err := NewBucket(ctx, "file://"+root)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, WriteJSON(ctx, b, "projects/p1/x.json", record{Name: "x"}))
	ok, err := b.Exists(ctx, "projects/p1/x.json")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = NewBucket(ctx, "gopher://nowhere")
	require.Error(t, err)
}
