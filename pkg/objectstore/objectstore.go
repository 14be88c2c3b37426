// Package objectstore defines the bucket/key storage used for source
// datasets, the raw archive and the columnar lake.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ObjectInfo holds object metadata.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// BucketInfo describes one bucket.
type BucketInfo struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creation_date"`
}

// Store is a bucket/key object store.
type Store interface {
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	// EnsureBucket creates bucket unless it already exists.
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// ListObjects lists every object under prefix, recursively.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ContentTypeParquet is used for every parquet object written.
const ContentTypeParquet = "application/vnd.apache.parquet"

// Download copies bucket/key into the local file dst, creating parent
// directories. A partially written file is removed on failure.
func Download(ctx context.Context, s Store, bucket, key, dst string) error {
	body, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	return f.Close()
}
