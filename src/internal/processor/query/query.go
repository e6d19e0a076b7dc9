// Package query filters dataset rows with jq expressions.
package query

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// PackageID is the identifier query commands are declared under.
const PackageID = "query"

// Processor executes query commands.
type Processor struct{}

var _ processor.Processor = (*Processor)(nil)

// New returns a query processor.
func New() *Processor {
	return &Processor{}
}

// Compute implements processor.Processor.
func (p *Processor) Compute(ctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
	if commandID != "filter" {
		return nil, errors.Errorf("unknown query command %q", commandID)
	}
	name, err := args.String("dataset")
	if err != nil {
		return nil, err
	}
	expr, err := args.String("expression")
	if err != nil {
		return nil, err
	}
	output, err := args.StringOr("output", name)
	if err != nil {
		return nil, err
	}
	q, err := gojq.Parse(expr)
	if err != nil {
		return tc.Failure(errors.Wrapf(err, "parse %q", expr)), nil
	}
	ds, err := tc.Dataset(ctx, name)
	if err != nil {
		return tc.Failure(err), nil
	}
	var rows []datastore.Row
	for _, r := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return nil, errors.EnsureStack(context.Cause(ctx))
		}
		keep, err := matches(q, rowObject(ds.Columns, r))
		if err != nil {
			return tc.Failure(errors.Wrapf(err, "row %d", r.ID)), nil
		}
		if keep {
			rows = append(rows, r)
		}
	}
	d, err := tc.Create(ctx, output, ds.Columns, rows, ds.Annotations)
	if err != nil {
		return nil, err
	}
	tc.Print(fmt.Sprintf("%d of %d rows selected", len(rows), len(ds.Rows)))
	tc.Output(viztrail.DatasetOutput(output, d))
	return tc.Success(), nil
}

// rowObject presents a row to jq as an object keyed by column name.
func rowObject(columns []datastore.Column, r datastore.Row) map[string]interface{} {
	obj := make(map[string]interface{}, len(columns))
	for i, c := range columns {
		obj[c.Name] = normalize(r.Values[i])
	}
	return obj
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float32:
		return float64(x)
	}
	return v
}

// matches reports whether the first value q produces for v is truthy.
func matches(q *gojq.Query, v interface{}) (bool, error) {
	iter := q.Run(v)
	out, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := out.(error); isErr {
		return false, errors.EnsureStack(err)
	}
	switch x := out.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	}
	return true, nil
}
