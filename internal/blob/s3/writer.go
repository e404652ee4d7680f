package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alta-labs/wagerd/internal/domain"
)

// archivePartSize is the multipart part size for archive uploads. S3 rejects
// parts under 5 MiB; 8 MiB keeps part counts low for large audit exports.
const archivePartSize int64 = 8 * 1024 * 1024

// Writer uploads archive batches to the configured bucket. Uploads go
// through the SDK's upload manager, which streams a single request for small
// batches and switches to multipart when an export outgrows one part.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer bound to the client's archive bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = archivePartSize
		}),
		bucket: c.Bucket(),
	}
}

// Put streams data to the given object path.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
