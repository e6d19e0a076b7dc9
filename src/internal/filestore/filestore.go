// Package filestore keeps files uploaded to a project.
package filestore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/uuid"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

const (
	FormatCSV  = "text/csv"
	FormatTSV  = "text/tab-separated-values"
	FormatJSON = "application/json"
)

// FileHandle identifies an uploaded file.
type FileHandle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Delimiter returns the field delimiter for delimited text formats.
func (h *FileHandle) Delimiter() rune {
	if h.Format == FormatTSV {
		return '\t'
	}
	return ','
}

// FileNotFoundError is returned for unknown file identifiers.
type FileNotFoundError struct {
	ID string
}

func (err *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found (id=%s)", err.ID)
}

// Filestore stores uploaded files under a bucket prefix: the content at <id>/data and the handle
// at <id>/handle.json.
type Filestore struct {
	bucket *obj.Bucket
	prefix string
}

// New returns a filestore rooted at prefix in bucket.
func New(bucket *obj.Bucket, prefix string) *Filestore {
	return &Filestore{bucket: bucket, prefix: prefix}
}

// UploadFile copies the local file at path into the store.
func (fs *Filestore) UploadFile(ctx context.Context, path string) (_ *FileHandle, retErr error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	defer errors.Close(&retErr, f, "close upload")
	return fs.Upload(ctx, filepath.Base(path), f)
}

// Upload stores the content of r under the given file name.
func (fs *Filestore) Upload(ctx context.Context, name string, r io.Reader) (*FileHandle, error) {
	h := &FileHandle{
		ID:        uuid.NewWithoutDashes(),
		Name:      name,
		Format:    formatOf(name),
		CreatedAt: time.Now().UTC(),
	}
	w, err := fs.bucket.NewWriter(ctx, fs.dataKey(h.ID), &blob.WriterOptions{ContentType: h.Format})
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s", name)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close() //nolint:errcheck
		return nil, errors.Wrapf(err, "upload %s", name)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(err, "upload %s", name)
	}
	h.Size = n
	if err := obj.WriteJSON(ctx, fs.bucket, fs.handleKey(h.ID), h); err != nil {
		return nil, err
	}
	log.Info(ctx, "uploaded file", zap.String("file", h.ID), zap.String("name", name), zap.Int64("size", n))
	return h, nil
}

// Get returns the handle of an uploaded file.
func (fs *Filestore) Get(ctx context.Context, id string) (*FileHandle, error) {
	h := &FileHandle{}
	if err := obj.ReadJSON(ctx, fs.bucket, fs.handleKey(id), h); err != nil {
		if obj.IsNotExist(err) {
			return nil, &FileNotFoundError{ID: id}
		}
		return nil, err
	}
	return h, nil
}

// Open returns a reader over the file's content.
func (fs *Filestore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	r, err := fs.bucket.NewReader(ctx, fs.dataKey(id), nil)
	if err != nil {
		if obj.IsNotExist(err) {
			return nil, &FileNotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "open file %s", id)
	}
	return r, nil
}

// List returns the handles of every uploaded file.
func (fs *Filestore) List(ctx context.Context) ([]*FileHandle, error) {
	dirs, err := obj.List(ctx, fs.bucket, fs.prefix, true)
	if err != nil {
		return nil, err
	}
	var result []*FileHandle
	for _, d := range dirs {
		h, err := fs.Get(ctx, strings.TrimSuffix(strings.TrimPrefix(d, fs.prefix), "/"))
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, nil
}

// Delete removes a file.  Deleting an unknown file is not an error.
func (fs *Filestore) Delete(ctx context.Context, id string) error {
	return obj.DeletePrefix(ctx, fs.bucket, fs.prefix+id+"/")
}

func (fs *Filestore) dataKey(id string) string   { return fs.prefix + id + "/data" }
func (fs *Filestore) handleKey(id string) string { return fs.prefix + id + "/handle.json" }

func formatOf(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".json":
		return FormatJSON
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
