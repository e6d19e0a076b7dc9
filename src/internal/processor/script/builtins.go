package script

import (
	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var vizierdbModule = &starlarkstruct.Module{
	Name: "vizierdb",
	Members: starlark.StringDict{
		"datasets":       starlark.NewBuiltin("datasets", datasets),
		"get_dataset":    starlark.NewBuiltin("get_dataset", getDataset),
		"create_dataset": starlark.NewBuiltin("create_dataset", createDataset),
		"drop_dataset":   starlark.NewBuiltin("drop_dataset", dropDataset),
	},
}

func datasets(t *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, errors.EnsureStack(err)
	}
	var names []starlark.Value
	for _, n := range taskContext(t).Names() {
		names = append(names, starlark.String(n))
	}
	return starlark.NewList(names), nil
}

// getDataset returns a dict with "columns", a list of column names, and "rows", a list of lists
// of cell values.
func getDataset(t *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
		return nil, errors.EnsureStack(err)
	}
	ds, err := taskContext(t).Dataset(goContext(t), name)
	if err != nil {
		return nil, err
	}
	cols := make([]starlark.Value, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = starlark.String(c.Name)
	}
	rows := make([]starlark.Value, len(ds.Rows))
	for i, r := range ds.Rows {
		vals := make([]starlark.Value, len(r.Values))
		for j, v := range r.Values {
			sv, err := toStarlark(v)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d", r.ID)
			}
			vals[j] = sv
		}
		rows[i] = starlark.NewList(vals)
	}
	result := starlark.NewDict(2)
	if err := result.SetKey(starlark.String("columns"), starlark.NewList(cols)); err != nil {
		return nil, errors.EnsureStack(err)
	}
	if err := result.SetKey(starlark.String("rows"), starlark.NewList(rows)); err != nil {
		return nil, errors.EnsureStack(err)
	}
	return result, nil
}

func createDataset(t *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name       string
		cols, rows *starlark.List
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "columns", &cols, "rows?", &rows); err != nil {
		return nil, errors.EnsureStack(err)
	}
	columns := make([]datastore.Column, cols.Len())
	for i := 0; i < cols.Len(); i++ {
		s, ok := starlark.AsString(cols.Index(i))
		if !ok {
			return nil, errors.Errorf("%s: column %d is not a string", fn.Name(), i)
		}
		columns[i] = datastore.Column{ID: int64(i), Name: s}
	}
	var dsRows []datastore.Row
	if rows != nil {
		for i := 0; i < rows.Len(); i++ {
			seq, ok := rows.Index(i).(starlark.Indexable)
			if !ok {
				return nil, errors.Errorf("%s: row %d is not a list", fn.Name(), i)
			}
			vals := make([]interface{}, seq.Len())
			for j := range vals {
				v, err := fromStarlark(seq.Index(j))
				if err != nil {
					return nil, errors.Wrapf(err, "%s: row %d", fn.Name(), i)
				}
				vals[j] = v
			}
			dsRows = append(dsRows, datastore.Row{ID: int64(i), Values: vals})
		}
	}
	d, err := taskContext(t).Create(goContext(t), name, columns, dsRows, nil)
	if err != nil {
		return nil, err
	}
	return starlark.String(d.ID), nil
}

func dropDataset(t *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
		return nil, errors.EnsureStack(err)
	}
	if err := taskContext(t).Drop(name); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func toStarlark(v interface{}) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case float64:
		return starlark.Float(x), nil
	}
	return nil, errors.Errorf("unsupported cell value %T", v)
}

func fromStarlark(v starlark.Value) (interface{}, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(x), nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return nil, errors.Errorf("integer %s out of range", x.String())
		}
		return n, nil
	case starlark.Float:
		return float64(x), nil
	}
	return nil, errors.Errorf("unsupported cell value of type %s", v.Type())
}
