// Package storage reads submitted source objects from S3-compatible storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ObjectStorage defines the object operations the judge needs.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

var (
	// ErrObjectTooLarge is returned by ReadObject when the object exceeds the limit.
	ErrObjectTooLarge = errors.New("object exceeds size limit")
	// ErrObjectNotFound is returned by implementations when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// ReadObject loads a whole object, refusing objects larger than maxBytes.
func ReadObject(ctx context.Context, s ObjectStorage, bucket, objectKey string, maxBytes int64) ([]byte, error) {
	stat, err := s.StatObject(ctx, bucket, objectKey)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && stat.SizeBytes > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrObjectTooLarge, stat.SizeBytes, maxBytes)
	}
	reader, err := s.GetObject(ctx, bucket, objectKey)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var src io.Reader = reader
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s failed: %w", bucket, objectKey, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrObjectTooLarge, maxBytes)
	}
	return data, nil
}
