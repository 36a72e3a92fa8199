// Package local stores scrape artifacts on the local filesystem. It is the
// default artifact destination for development and single-node deployments.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config locates the directory that receives scrape artifacts.
type Config struct {
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes snapshots and page archives under a base directory.
type BlobStore struct {
	baseDir string
}

// New resolves the base directory, creating it if missing.
func New(cfg Config) (*BlobStore, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, errors.New("base directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &BlobStore{baseDir: abs}, nil
}

// PutObject writes the artifact and returns a file:// URI. The write goes
// through a temp file and a rename so a concurrent reader never observes a
// half-written artifact.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	return "file://" + target, nil
}

// resolve joins path under the base directory and rejects anything that
// escapes it.
func (s *BlobStore) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("artifact path is required")
	}
	target := filepath.Join(s.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.baseDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal rejected: %s", path)
	}
	return target, nil
}
