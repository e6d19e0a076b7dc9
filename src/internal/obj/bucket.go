// Package obj opens the object storage buckets vizier keeps its datasets, files and viztrails in.
package obj

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/vizierdb/vizier/src/internal/errors"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
)

// Bucket represents access to a single object storage bucket.
type Bucket = blob.Bucket

const (
	Amazon = "s3"
	Local  = "file"
	Memory = "mem"
)

// NewBucket opens the bucket named by storageURL.  Supported schemes are s3://bucket (with
// optional region, endpoint and disableSSL query parameters), file:///path and mem://.
func NewBucket(ctx context.Context, storageURL string) (*Bucket, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse storage url %q", storageURL)
	}
	var bucket *Bucket
	switch u.Scheme {
	case Amazon:
		bucket, err = newAmazonBucket(ctx, u)
	case Local:
		bucket, err = newLocalBucket(u.Path)
	case Memory:
		bucket = memblob.OpenBucket(nil)
	default:
		return nil, errors.Errorf("unrecognized storage backend: %q", u.Scheme)
	}
	if err != nil {
		return nil, errors.Wrap(err, "new bucket")
	}
	return bucket, nil
}

func newLocalBucket(root string) (*Bucket, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.EnsureStack(err)
	}
	b, err := fileblob.OpenBucket(root, nil)
	return b, errors.EnsureStack(err)
}

func newAmazonBucket(ctx context.Context, u *url.URL) (*Bucket, error) {
	params := u.Query()
	// if unset, disableSSL will be false.
	disableSSL, _ := strconv.ParseBool(params.Get("disableSSL"))
	awsConfig := &aws.Config{
		Region:     aws.String(params.Get("region")),
		DisableSSL: aws.Bool(disableSSL),
	}
	if endpoint := params.Get("endpoint"); endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating amazon session")
	}
	b, err := s3blob.OpenBucket(ctx, sess, u.Host, nil)
	if err != nil {
		return nil, errors.Wrap(err, "amazon bucket")
	}
	return b, nil
}
