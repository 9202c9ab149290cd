package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imgstore/internal/models"
)

type memoryCache struct {
	entries map[string][]byte
	failGet bool
	gets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.gets++
	if m.failGet {
		return nil, false, errors.New("cache down")
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte) error {
	m.entries[key] = value
	return nil
}

func (m *memoryCache) Del(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedStoreReadThroughAndInvalidate(t *testing.T) {
	dir := testLocalDir(t)
	cache := newMemoryCache()
	cs := NewCachedStore(dir, cache, 0, quietLogger())
	ctx := context.Background()

	if err := cs.Put(ctx, &models.StoredImage{Key: "c.png", Payload: []byte("one")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cs.Get(ctx, "c.png"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := cache.entries["c.png"]; !ok {
		t.Fatal("expected image cached after first read")
	}

	// Remove the file behind the cache's back; the cached copy still serves.
	if err := os.Remove(filepath.Join(dir.Root(), "c.png")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := cs.Get(ctx, "c.png")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got == nil || string(got.Payload) != "one" || got.ContentType != "image/png" {
		t.Fatalf("unexpected cached image: %#v", got)
	}

	if _, err := cs.Delete(ctx, "c.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := cache.entries["c.png"]; ok {
		t.Fatal("expected delete to invalidate cache")
	}
	got, err = cs.Get(ctx, "c.png")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %#v", got)
	}
}

func TestCachedStoreSkipsLargeImagesAndSurvivesCacheErrors(t *testing.T) {
	dir := testLocalDir(t)
	cache := newMemoryCache()
	cs := NewCachedStore(dir, cache, 4, quietLogger())
	ctx := context.Background()

	if err := cs.Put(ctx, &models.StoredImage{Key: "big.png", Payload: []byte("too large"), CreatedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cs.Get(ctx, "big.png"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatalf("expected large image to bypass cache, got %d entries", len(cache.entries))
	}

	cache.failGet = true
	got, err := cs.Get(ctx, "big.png")
	if err != nil {
		t.Fatalf("expected cache failure to be bypassed, got %v", err)
	}
	if got == nil || string(got.Payload) != "too large" {
		t.Fatalf("unexpected image: %#v", got)
	}
}

func TestCachedStorePassesOwnerIndexThrough(t *testing.T) {
	dir := testLocalDir(t)
	cs := NewCachedStore(dir, newMemoryCache(), 0, quietLogger())
	ctx := context.Background()

	if err := cs.LinkOwner(ctx, "u", "k.png"); err != nil {
		t.Fatalf("link: %v", err)
	}
	key, err := cs.FindByOwner(ctx, "u")
	if err != nil || key != "k.png" {
		t.Fatalf("find: %q %v", key, err)
	}
}
