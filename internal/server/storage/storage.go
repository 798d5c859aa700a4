// Package storage defines the durable object storage collaborator consumed by
// the sync engine, with local-filesystem and S3-compatible implementations.
// Keys are opaque to callers; the engine never derives meaning from them.
package storage

import "context"

// Backend stores immutable version blobs under opaque keys.
type Backend interface {
	Store(ctx context.Context, key string, data []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetSize(ctx context.Context, key string) (int64, error)
}
