package query

import (
	"testing"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

func setup(t *testing.T) *processor.TaskContext {
	tc := processor.NewTestContext(t, nil)
	_, err := tc.Create(log.Test(t), "people",
		[]datastore.Column{{ID: 0, Name: "name"}, {ID: 1, Name: "age"}},
		[]datastore.Row{
			{ID: 0, Values: []interface{}{"alice", int64(23)}},
			{ID: 1, Values: []interface{}{"bob", nil}},
			{ID: 2, Values: []interface{}{"carol", 41.5}},
		}, nil)
	require.NoError(t, err)
	return processor.Chain(tc, "filter")
}

func filter(expr, output string) *viztrail.Command {
	args := viztrail.Record{"dataset": viztrail.String("people"), "expression": viztrail.String(expr)}
	if output != "" {
		args["output"] = viztrail.String(output)
	}
	return viztrail.NewCommand(PackageID, "filter", args)
}

func TestFilter(t *testing.T) {
	ctx := log.Test(t)
	testData := []struct {
		expr  string
		names []interface{}
	}{
		{expr: ".age > 30", names: []interface{}{"carol"}},
		{expr: ".age", names: []interface{}{"alice", "carol"}},
		{expr: `.name | startswith("b")`, names: []interface{}{"bob"}},
		{expr: "empty", names: nil},
	}
	for _, test := range testData {
		t.Run(test.expr, func(t *testing.T) {
			tc := setup(t)
			res := processor.Run(ctx, New(), filter(test.expr, "adults"), tc)
			s, ok := res.(*processor.Success)
			require.True(t, ok, "unexpected result %#v", res)
			require.Equal(t, []string{"adults", "people"}, tc.Names())
			require.Len(t, s.Provenance.Read, 1)
			ds, err := tc.Dataset(ctx, "adults")
			require.NoError(t, err)
			var names []interface{}
			for _, r := range ds.Rows {
				names = append(names, r.Values[0])
			}
			require.Equal(t, test.names, names)
		})
	}
}

func TestFilterInPlace(t *testing.T) {
	ctx := log.Test(t)
	tc := setup(t)
	res := processor.Run(ctx, New(), filter(`.name != "bob"`, ""), tc)
	s, ok := res.(*processor.Success)
	require.True(t, ok, "unexpected result %#v", res)
	require.Equal(t, 2, s.Provenance.Write["people"].RowCount)
	require.Equal(t, "2 of 3 rows selected", s.Outputs.Stdout[0].Value)
}

func TestFilterErrors(t *testing.T) {
	ctx := log.Test(t)
	for _, expr := range []string{".[", `error("nope")`} {
		t.Run(expr, func(t *testing.T) {
			res := processor.Run(ctx, New(), filter(expr, ""), setup(t))
			_, ok := res.(*processor.Failure)
			require.True(t, ok, "unexpected result %#v", res)
		})
	}
}
