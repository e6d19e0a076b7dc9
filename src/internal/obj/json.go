package obj

import (
	"context"
	"encoding/json"
	"io"

	"github.com/vizierdb/vizier/src/internal/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// IsNotExist reports whether err means the object does not exist.
func IsNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// WriteJSON marshals v and writes it to key.
func WriteJSON(ctx context.Context, b *Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	if err := b.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}

// ReadJSON reads key and unmarshals it into v.  A missing object is reported with an error for
// which IsNotExist is true.
func ReadJSON(ctx context.Context, b *Bucket, key string, v interface{}) error {
	data, err := b.ReadAll(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "unmarshal %s", key)
	}
	return nil
}

// List returns the keys directly under prefix.  Subdirectories (keys ending in "/") are
// included when dirs is true.
func List(ctx context.Context, b *Bucket, prefix string, dirs bool) ([]string, error) {
	it := b.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var keys []string
	for {
		o, err := it.Next(ctx)
		if err == io.EOF {
			return keys, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", prefix)
		}
		if o.IsDir != dirs {
			continue
		}
		keys = append(keys, o.Key)
	}
}

// DeletePrefix deletes every object under prefix.
func DeletePrefix(ctx context.Context, b *Bucket, prefix string) error {
	it := b.List(&blob.ListOptions{Prefix: prefix})
	for {
		o, err := it.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "list %s", prefix)
		}
		if err := b.Delete(ctx, o.Key); err != nil && !IsNotExist(err) {
			return errors.Wrapf(err, "delete %s", o.Key)
		}
	}
}
