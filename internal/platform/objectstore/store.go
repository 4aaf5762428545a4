package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/s3"
)

var ErrObjectNotFound = errors.New("object not found")

// Store reads and writes uploaded documents under a base URL. Any scheme registered with afs
// works (file://, mem://, s3://); a bare path is treated as a local directory.
type Store struct {
	fs      afs.Service
	baseURL string
}

func New(baseURL string) (*Store, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Store{fs: afs.New(), baseURL: base}, nil
}

func (s *Store) URL(key string) string {
	return url.Join(s.baseURL, strings.TrimLeft(key, "/"))
}

// GetFile returns the object stored under key, or ErrObjectNotFound.
func (s *Store) GetFile(ctx context.Context, key string) ([]byte, error) {
	URL := s.URL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("check object %s failed: %w", key, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("download object %s failed: %w", key, err)
	}
	return data, nil
}

func (s *Store) PutFile(ctx context.Context, key string, data []byte) error {
	if err := s.fs.Upload(ctx, s.URL(key), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload object %s failed: %w", key, err)
	}
	return nil
}

// DeleteFile removes the object; a missing object is not an error.
func (s *Store) DeleteFile(ctx context.Context, key string) error {
	URL := s.URL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("check object %s failed: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("delete object %s failed: %w", key, err)
	}
	return nil
}

func normalizeBaseURL(baseURL string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", errors.New("storage base url is required")
	}
	if strings.Contains(baseURL, "://") {
		return strings.TrimRight(baseURL, "/"), nil
	}
	abs, err := filepath.Abs(baseURL)
	if err != nil {
		return "", fmt.Errorf("resolve storage path failed: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
