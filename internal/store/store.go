// Package store defines the object-store boundary the pipeline works
// against. Providers (local filesystem, Google Cloud Storage, S3) register
// themselves with the factory; the rest of the codebase only sees Store.
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors providers translate their backend failures into.
// Callers branch on these with errors.Is.
var (
	// ErrNotFound indicates the object does not exist.
	ErrNotFound = errors.New("store: object not found")
	// ErrAlreadyExists indicates a create-only write lost to an existing object.
	ErrAlreadyExists = errors.New("store: object already exists")
	// ErrSignedURLUnsupported indicates the provider cannot mint signed URLs.
	ErrSignedURLUnsupported = errors.New("store: signed URLs not supported")
)

// PutOptions controls a single write.
type PutOptions struct {
	// ContentType is stored as object metadata where the backend supports it.
	ContentType string
	// CreateOnly makes the write fail with ErrAlreadyExists instead of
	// replacing an existing object. This is the store-level primitive the
	// exactly-once transcript write is built on.
	CreateOnly bool
}

// Store is the capability surface the pipeline needs from an object store.
// All writes are atomic at the object level: a reader observes either the
// previous complete object or the new complete object, never a partial one.
type Store interface {
	// Provider returns the provider name ("local", "gcs", "s3").
	Provider() string

	// Download returns a reader for the object. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object from r according to opts.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error

	// Copy duplicates srcKey to dstKey within the store.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// SignedReadURL mints a time-limited read URL for the object.
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// URI returns the provider-native location of key (gs://, s3://, file://),
	// suitable for handing to external services such as a batch recognizer.
	URI(key string) string
}
