package storage

import (
	"context"
	"io"
)

const (
	DocumentsBucket = "documents"
	DatasetsBucket  = "datasets"
)

type Object struct {
	Name string
	Size int64
}

type Provider interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// PutFile copies a file from outside the store into bucket/key.
	PutFile(ctx context.Context, bucket, key, srcPath string) error

	// DeleteObject removes bucket/key. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error

	ListObjects(ctx context.Context, bucket string) ([]Object, error)

	// ClearBucket removes every object in the bucket.
	ClearBucket(ctx context.Context, bucket string) error

	// Path is the absolute filesystem path of bucket/key.
	Path(bucket, key string) string
}
