// Package storage provides access to the per-region object stores that hold
// file content, addressed by the digest-derived key.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Head and Open when the key is absent.
var ErrObjectNotFound = errors.New("object not found")

// StorageClassStandard is the only storage class accepted for stored content.
const StorageClassStandard = "STANDARD"

// ObjectInfo is the metadata of a stored object relevant to verification.
type ObjectInfo struct {
	Size                    int64
	StorageClass            string
	WebsiteRedirectLocation string
}

// Store is the object storage capability used by the service. Regions are
// configured region names; the store maps them to buckets.
type Store interface {
	// PresignPut returns a URL allowing one PUT of key until expiresIn elapses.
	PresignPut(ctx context.Context, region, key string, expiresIn time.Duration) (string, error)
	// PresignGet returns a URL allowing GET of key until expiresIn elapses.
	PresignGet(ctx context.Context, region, key string, expiresIn time.Duration) (string, error)
	Head(ctx context.Context, region, key string) (*ObjectInfo, error)
	Open(ctx context.Context, region, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, region, key string) error
	// Copy performs a server-side copy of key from srcRegion to dstRegion
	// with the standard storage class.
	Copy(ctx context.Context, srcRegion, dstRegion, key string) error
	SetPrivate(ctx context.Context, region, key string) error
}
