// Package vizual implements spreadsheet-style edits of datasets.
package vizual

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

// PackageID is the identifier vizual commands are declared under.
const PackageID = "vizual"

// Processor executes vizual commands.
type Processor struct{}

var _ processor.Processor = (*Processor)(nil)

// New returns a vizual processor.
func New() *Processor {
	return &Processor{}
}

type editFunc func(ds *datastore.Dataset, args viztrail.Record) error

// Compute implements processor.Processor.
func (p *Processor) Compute(ctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
	var (
		name string
		err  error
	)
	switch commandID {
	case "load":
		name, err = load(ctx, args, tc)
	case "emptyDataset":
		name, err = emptyDataset(ctx, args, tc)
	case "insertColumn":
		name, err = edit(ctx, args, tc, insertColumn)
	case "deleteColumn":
		name, err = edit(ctx, args, tc, deleteColumn)
	case "renameColumn":
		name, err = edit(ctx, args, tc, renameColumn)
	case "insertRow":
		name, err = edit(ctx, args, tc, insertRow)
	case "deleteRow":
		name, err = edit(ctx, args, tc, deleteRow)
	case "updateCell":
		name, err = edit(ctx, args, tc, updateCell)
	case "dropDataset":
		err = dropDataset(args, tc)
	case "renameDataset":
		name, err = renameDataset(args, tc)
	default:
		return nil, errors.Errorf("unknown vizual command %q", commandID)
	}
	if err != nil {
		return tc.Failure(err), nil
	}
	if name != "" {
		d, err := tc.Descriptor(name)
		if err != nil {
			return nil, err
		}
		tc.Output(viztrail.DatasetOutput(name, d))
		log.Debug(ctx, "vizual edit done", zap.String("dataset", name), zap.String("snapshot", d.ID))
	}
	return tc.Success(), nil
}

func emptyDataset(ctx context.Context, args viztrail.Record, tc *processor.TaskContext) (string, error) {
	name, err := args.String("name")
	if err != nil {
		return "", err
	}
	if tc.Exists(name) {
		return "", errors.Errorf("dataset %q already exists", name)
	}
	_, err = tc.Create(ctx, name, nil, nil, nil)
	return name, err
}

// edit applies f to a copy of the dataset named by the "dataset" argument and stores the result
// under the same name.
func edit(ctx context.Context, args viztrail.Record, tc *processor.TaskContext, f editFunc) (string, error) {
	name, err := args.String("dataset")
	if err != nil {
		return "", err
	}
	ds, err := tc.Dataset(ctx, name)
	if err != nil {
		return "", err
	}
	ds = ds.Clone()
	if err := f(ds, args); err != nil {
		return "", err
	}
	_, err = tc.Create(ctx, name, ds.Columns, ds.Rows, ds.Annotations)
	return name, err
}

func position(args viztrail.Record, n int) (int, error) {
	if !args.Has("position") {
		return n, nil
	}
	pos, err := args.Int("position")
	if err != nil {
		return 0, err
	}
	if pos < 0 || pos > int64(n) {
		return 0, errors.Errorf("position %d out of range [0, %d]", pos, n)
	}
	return int(pos), nil
}

func columnIndex(ds *datastore.Dataset, args viztrail.Record) (int64, int, error) {
	id, err := args.Int("column")
	if err != nil {
		return 0, 0, err
	}
	idx := ds.ColumnIndex(id)
	if idx < 0 {
		return 0, 0, errors.Errorf("unknown column %d", id)
	}
	return id, idx, nil
}

func rowIndex(ds *datastore.Dataset, args viztrail.Record) (int64, int, error) {
	id, err := args.Int("row")
	if err != nil {
		return 0, 0, err
	}
	idx := ds.RowIndex(id)
	if idx < 0 {
		return 0, 0, errors.Errorf("unknown row %d", id)
	}
	return id, idx, nil
}

func insertColumn(ds *datastore.Dataset, args viztrail.Record) error {
	name, err := args.String("name")
	if err != nil {
		return err
	}
	pos, err := position(args, len(ds.Columns))
	if err != nil {
		return err
	}
	col := datastore.Column{ID: ds.MaxColumnID() + 1, Name: name}
	ds.Columns = append(ds.Columns[:pos], append([]datastore.Column{col}, ds.Columns[pos:]...)...)
	for i := range ds.Rows {
		vals := ds.Rows[i].Values
		ds.Rows[i].Values = append(vals[:pos], append([]interface{}{nil}, vals[pos:]...)...)
	}
	return nil
}

func deleteColumn(ds *datastore.Dataset, args viztrail.Record) error {
	id, idx, err := columnIndex(ds, args)
	if err != nil {
		return err
	}
	ds.Columns = append(ds.Columns[:idx], ds.Columns[idx+1:]...)
	for i := range ds.Rows {
		vals := ds.Rows[i].Values
		ds.Rows[i].Values = append(vals[:idx], vals[idx+1:]...)
	}
	ds.Annotations = filterAnnotations(ds.Annotations, func(a datastore.Annotation) bool { return a.ColumnID != id })
	return nil
}

func renameColumn(ds *datastore.Dataset, args viztrail.Record) error {
	_, idx, err := columnIndex(ds, args)
	if err != nil {
		return err
	}
	name, err := args.String("name")
	if err != nil {
		return err
	}
	ds.Columns[idx].Name = name
	return nil
}

func insertRow(ds *datastore.Dataset, args viztrail.Record) error {
	pos, err := position(args, len(ds.Rows))
	if err != nil {
		return err
	}
	row := datastore.Row{ID: ds.MaxRowID() + 1, Values: make([]interface{}, len(ds.Columns))}
	ds.Rows = append(ds.Rows[:pos], append([]datastore.Row{row}, ds.Rows[pos:]...)...)
	return nil
}

func deleteRow(ds *datastore.Dataset, args viztrail.Record) error {
	id, idx, err := rowIndex(ds, args)
	if err != nil {
		return err
	}
	ds.Rows = append(ds.Rows[:idx], ds.Rows[idx+1:]...)
	ds.Annotations = filterAnnotations(ds.Annotations, func(a datastore.Annotation) bool { return a.RowID != id })
	return nil
}

func updateCell(ds *datastore.Dataset, args viztrail.Record) error {
	_, col, err := columnIndex(ds, args)
	if err != nil {
		return err
	}
	_, row, err := rowIndex(ds, args)
	if err != nil {
		return err
	}
	var value interface{}
	if v, ok := args.Get("value"); ok {
		s, ok := v.(viztrail.Scalar)
		if !ok {
			return errors.New("cell value must be a scalar")
		}
		value = s.V
	}
	ds.Rows[row].Values[col] = value
	return nil
}

func filterAnnotations(annos []datastore.Annotation, keep func(datastore.Annotation) bool) []datastore.Annotation {
	var out []datastore.Annotation
	for _, a := range annos {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func dropDataset(args viztrail.Record, tc *processor.TaskContext) error {
	name, err := args.String("dataset")
	if err != nil {
		return err
	}
	return tc.Drop(name)
}

func renameDataset(args viztrail.Record, tc *processor.TaskContext) (string, error) {
	from, err := args.String("dataset")
	if err != nil {
		return "", err
	}
	to, err := args.String("name")
	if err != nil {
		return "", err
	}
	return to, tc.Rename(from, to)
}
