package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fleetops/telemetry-trainer/internal/config"
)

// MinioClient implements ObjectStorage on top of a MinIO (or any
// S3-compatible) endpoint.
type MinioClient struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioClient builds a new MinioClient from the given config.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init failed: %w", err)
	}

	return &MinioClient{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// Bucket returns the bucket this client operates on.
func (c *MinioClient) Bucket() string {
	return c.bucket
}

// ListKeys lists the object keys under prefix. The result is never nil.
func (c *MinioClient) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	for object := range c.client.ListObjects(ctx, c.bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s/%s failed: %w", c.bucket, prefix, object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// ListObjects lists the objects under prefix with their metadata.
func (c *MinioClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	for object := range c.client.ListObjects(ctx, c.bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s/%s failed: %w", c.bucket, prefix, object.Err)
		}
		results = append(results, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return results, nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("bucket check for %s failed: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("bucket create for %s failed: %w", c.bucket, err)
	}
	return nil
}

var _ ObjectStorage = (*MinioClient)(nil)
