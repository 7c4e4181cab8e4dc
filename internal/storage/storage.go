package storage

import (
	"context"
	"time"
)

// ObjectInfo represents metadata for a remote telemetry object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage captures the S3-compatible operations the trainer needs.
// ListKeys must return an empty, non-nil slice when nothing matches the
// prefix; an empty partition is a normal outcome, not an error.
type ObjectStorage interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	EnsureBucket(ctx context.Context) error
	Bucket() string
}
