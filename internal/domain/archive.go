package domain

import (
	"context"
	"io"
)

// Archiver copies a closed auction and its full bid history to cold storage
// and returns the object key it wrote. Archiving the same auction twice
// leaves the first object in place.
type Archiver interface {
	ArchiveAuction(ctx context.Context, auctionID string) (string, error)
}

// BlobWriter stores whole objects under a key.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// BlobReader reads objects back. Get returns ErrNotFound for a missing key.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
