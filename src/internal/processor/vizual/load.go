package vizual

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/filestore"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// Column types assigned by load.
const (
	TypeInt    = "int"
	TypeReal   = "real"
	TypeString = "varchar"
)

func load(ctx context.Context, args viztrail.Record, tc *processor.TaskContext) (_ string, retErr error) {
	name, err := args.String("name")
	if err != nil {
		return "", err
	}
	fileID, err := args.String("file")
	if err != nil {
		return "", err
	}
	h, r, err := tc.File(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer errors.Close(&retErr, r, "close file")
	var (
		columns []datastore.Column
		rows    []datastore.Row
	)
	switch h.Format {
	case filestore.FormatJSON:
		columns, rows, err = readJSON(r)
	default:
		columns, rows, err = readDelimited(r, h.Delimiter())
	}
	if err != nil {
		return "", errors.Wrapf(err, "load %s", h.Name)
	}
	if _, err := tc.Create(ctx, name, columns, rows, nil); err != nil {
		return "", err
	}
	tc.Print(strconv.Itoa(len(rows)) + " rows loaded from " + h.Name)
	return name, nil
}

// readDelimited reads a header line followed by records.  Column types are inferred: a column
// whose non-empty cells all parse as integers is int, as numbers is real, otherwise varchar.
func readDelimited(r io.Reader, delim rune) ([]datastore.Column, []datastore.Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, errors.New("file is empty")
		}
		return nil, nil, errors.EnsureStack(err)
	}
	columns := make([]datastore.Column, len(header))
	for i, h := range header {
		columns[i] = datastore.Column{ID: int64(i), Name: h}
	}
	var raw [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.EnsureStack(err)
		}
		if len(rec) != len(header) {
			return nil, nil, errors.Errorf("line %d has %d fields, want %d", len(raw)+2, len(rec), len(header))
		}
		raw = append(raw, rec)
	}
	for i := range columns {
		columns[i].Type = inferType(raw, i)
	}
	rows := make([]datastore.Row, len(raw))
	for r, rec := range raw {
		vals := make([]interface{}, len(rec))
		for c, s := range rec {
			vals[c] = convert(s, columns[c].Type)
		}
		rows[r] = datastore.Row{ID: int64(r), Values: vals}
	}
	return columns, rows, nil
}

func inferType(raw [][]string, col int) string {
	t := TypeInt
	for _, rec := range raw {
		s := rec[col]
		if s == "" {
			continue
		}
		if t == TypeInt {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				continue
			}
			t = TypeReal
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return TypeString
		}
	}
	return t
}

func convert(s, typ string) interface{} {
	if s == "" && typ != TypeString {
		return nil
	}
	switch typ {
	case TypeInt:
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	case TypeReal:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return s
}

// readJSON reads an array of objects.  Columns are the union of the object keys in sorted order.
func readJSON(r io.Reader) ([]datastore.Column, []datastore.Row, error) {
	var objs []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&objs); err != nil {
		return nil, nil, errors.Wrap(err, "expected a JSON array of objects")
	}
	seen := make(map[string]bool)
	var names []string
	for _, o := range objs {
		for k := range o {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	columns := make([]datastore.Column, len(names))
	for i, n := range names {
		columns[i] = datastore.Column{ID: int64(i), Name: n}
	}
	rows := make([]datastore.Row, len(objs))
	for i, o := range objs {
		vals := make([]interface{}, len(names))
		for c, n := range names {
			vals[c] = o[n]
		}
		rows[i] = datastore.Row{ID: int64(i), Values: vals}
	}
	return columns, rows, nil
}
