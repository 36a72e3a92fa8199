// Package gcs stores scrape artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config locates the bucket that receives scrape artifacts.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name so scraper output stays
	// separate from anything else living in the bucket.
	Prefix string
}

// BlobStore uploads snapshots and page archives to GCS.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New wires a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutObject uploads the artifact and returns its gs:// URI. The object only
// becomes visible once the writer closes cleanly, so a failed upload leaves
// nothing behind.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	name, err := s.objectName(path)
	if err != nil {
		return "", err
	}

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

func (s *BlobStore) objectName(path string) (string, error) {
	name := strings.Trim(strings.TrimSpace(path), "/")
	if name == "" {
		return "", errors.New("object name is required")
	}
	if s.prefix == "" {
		return name, nil
	}
	return s.prefix + "/" + name, nil
}
