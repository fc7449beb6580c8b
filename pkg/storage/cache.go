// Package storage caches product images fetched from the backend.
package storage

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// Image is a product image body with its media type.
type Image struct {
	Data        []byte
	ContentType string
}

func (i Image) contentType() string {
	if ct := strings.TrimSpace(i.ContentType); ct != "" {
		return ct
	}
	return http.DetectContentType(i.Data)
}

// ImageCache stores images by product id.
type ImageCache interface {
	Get(ctx context.Context, key string) (Image, bool, error)
	Put(ctx context.Context, key string, img Image) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process ImageCache.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]Image
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]Image)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Image, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[key]
	return img, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, img Image) error {
	img.ContentType = img.contentType()
	m.mu.Lock()
	m.images[key] = img
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.images, key)
	m.mu.Unlock()
	return nil
}

// safeKey maps a product id onto a single path element.
func safeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	if key == "" || key == "." {
		return "_"
	}
	return key
}
