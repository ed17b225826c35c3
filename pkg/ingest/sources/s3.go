package sources

import (
	"context"
	"io"

	"github.com/tabflow/tabflow/pkg/ingest/core"
	s3store "github.com/tabflow/tabflow/pkg/storage/s3"
)

// S3Opener reads an object from S3.
type S3Opener struct {
	client *s3store.Client
	bucket string
	key    string
}

// NewS3Opener creates an opener for bucket/key.
func NewS3Opener(client *s3store.Client, bucket, key string) *S3Opener {
	return &S3Opener{client: client, bucket: bucket, key: key}
}

func (o *S3Opener) Location() string    { return s3store.URL(o.bucket, o.key) }
func (o *S3Opener) Format() core.Format { return detectFormatFromPath(o.key) }

// Open returns the object body.
func (o *S3Opener) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := o.client.Reader(ctx, o.bucket, o.key)
	return rc, err
}

var _ core.Opener = (*S3Opener)(nil)
