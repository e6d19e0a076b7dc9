// Package datastore stores immutable tabular dataset snapshots.
//
// A snapshot is addressed by the hash of its content: creating the same columns, rows and
// annotations twice yields the same identifier.  Snapshots are never modified; edits create a new
// snapshot.
package datastore

import (
	"context"
	"fmt"
)

// Column is a named dataset column.  Column identifiers are stable across edits; names are not.
type Column struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Row is a dataset row.  Values are positional, matching the dataset's columns.
type Row struct {
	ID     int64         `json:"id"`
	Values []interface{} `json:"values"`
}

// Annotation attaches a key/value to a cell.  A RowID or ColumnID of -1 annotates a whole
// column or row.
type Annotation struct {
	ColumnID int64  `json:"columnId"`
	RowID    int64  `json:"rowId"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Descriptor describes a snapshot without its rows.
type Descriptor struct {
	ID       string   `json:"id"`
	Columns  []Column `json:"columns"`
	RowCount int      `json:"rowCount"`
}

// ColumnByName returns the first column with the given name.
func (d *Descriptor) ColumnByName(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnIndex returns the position of the column with the given identifier, or -1.
func (d *Descriptor) ColumnIndex(id int64) int {
	for i, c := range d.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// MaxColumnID returns the largest column identifier, or -1 for a dataset without columns.
func (d *Descriptor) MaxColumnID() int64 {
	max := int64(-1)
	for _, c := range d.Columns {
		if c.ID > max {
			max = c.ID
		}
	}
	return max
}

// Dataset is a full snapshot.  Datasets returned by a Datastore are shared and must not be
// modified; use Clone to edit.
type Dataset struct {
	Descriptor
	Rows        []Row        `json:"rows"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Clone returns a deep copy of ds.
func (ds *Dataset) Clone() *Dataset {
	out := &Dataset{
		Descriptor: Descriptor{
			ID:       ds.ID,
			Columns:  append([]Column(nil), ds.Columns...),
			RowCount: ds.RowCount,
		},
		Annotations: append([]Annotation(nil), ds.Annotations...),
		Rows:        make([]Row, len(ds.Rows)),
	}
	for i, r := range ds.Rows {
		out.Rows[i] = Row{ID: r.ID, Values: append([]interface{}(nil), r.Values...)}
	}
	return out
}

// MaxRowID returns the largest row identifier, or -1 for an empty dataset.
func (ds *Dataset) MaxRowID() int64 {
	max := int64(-1)
	for _, r := range ds.Rows {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

// RowIndex returns the position of the row with the given identifier, or -1.
func (ds *Dataset) RowIndex(id int64) int {
	for i, r := range ds.Rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// AnnotationUpdate describes a change to one annotation.  An empty OldValue adds NewValue; an
// empty NewValue removes OldValue; otherwise OldValue is replaced.
type AnnotationUpdate struct {
	ColumnID int64
	RowID    int64
	Key      string
	OldValue string
	NewValue string
}

// Datastore is a content-addressed store of dataset snapshots.
type Datastore interface {
	// GetDataset returns the snapshot with the given identifier, or a *DatasetNotFoundError.
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	// GetDescriptor returns the descriptor of the snapshot, or a *DatasetNotFoundError.
	GetDescriptor(ctx context.Context, id string) (*Descriptor, error)
	// CreateDataset stores a new snapshot and returns its descriptor.
	CreateDataset(ctx context.Context, columns []Column, rows []Row, annotations []Annotation) (*Descriptor, error)
	// UpdateAnnotation creates a snapshot of id with one annotation changed.  It returns nil
	// when the annotation to change or remove does not exist.
	UpdateAnnotation(ctx context.Context, id string, update AnnotationUpdate) (*Descriptor, error)
}

// DatasetNotFoundError is returned for unknown dataset identifiers.
type DatasetNotFoundError struct {
	ID string
}

func (err *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset not found (id=%s)", err.ID)
}
