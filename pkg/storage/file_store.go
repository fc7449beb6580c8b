package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const contentTypeSuffix = ".type"

// FileStore keeps cached images on disk under a base directory, one file per
// product plus a sidecar holding the media type.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.basePath, safeKey(key))
}

// Get reads a cached image. A missing file is not an error.
func (f *FileStore) Get(_ context.Context, key string) (Image, bool, error) {
	p := f.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return Image{}, false, nil
	}
	if err != nil {
		return Image{}, false, fmt.Errorf("read image: %w", err)
	}
	img := Image{Data: data}
	if ct, err := os.ReadFile(p + contentTypeSuffix); err == nil {
		img.ContentType = strings.TrimSpace(string(ct))
	}
	img.ContentType = img.contentType()
	return img, true, nil
}

// Put writes an image, replacing any previous copy.
func (f *FileStore) Put(_ context.Context, key string, img Image) error {
	p := f.path(key)
	if err := writeAtomic(p+contentTypeSuffix, []byte(img.contentType())); err != nil {
		return fmt.Errorf("write image type: %w", err)
	}
	if err := writeAtomic(p, img.Data); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// Delete removes an image; removing a missing image succeeds.
func (f *FileStore) Delete(_ context.Context, key string) error {
	p := f.path(key)
	for _, target := range []string{p, p + contentTypeSuffix} {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete image: %w", err)
		}
	}
	return nil
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".img-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
