package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object under a prefix.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter mirrors snapshot and scan artifacts to object storage. Large
// snapshots go through PutMultipart.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader is the read side used to recover the newest snapshot when the
// local output directory is empty.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
