// Package storage defines the blob store interface used for scrape snapshots.
// The abstraction keeps the scraper independent of the backing medium
// (Google Cloud Storage or the local filesystem).
package storage

import (
	"context"
	"io"
)

// BlobStore writes an artifact to a path and returns a URI for it.
type BlobStore interface {
	// PutObject stores data under path with the given content type and
	// returns the resulting object URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// NoOpStore discards everything. Useful when snapshot archiving is disabled.
type NoOpStore struct{}

// PutObject drains the reader and reports an empty URI.
func (NoOpStore) PutObject(_ context.Context, _ string, _ string, data io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, data)
	return "", err
}
