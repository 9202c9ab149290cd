package blobstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"imgstore/internal/models"
)

func TestMinioObjectNames(t *testing.T) {
	s := NewMinioStoreWithClient(nil, "bucket", "/tenant/")
	if got := s.imageObject("k.png"); got != "tenant/images/k.png" {
		t.Fatalf("unexpected image object: %q", got)
	}
	owner := s.ownerObject("user-1")
	if !strings.HasPrefix(owner, "tenant/owners/") || len(owner) != len("tenant/owners/")+64 {
		t.Fatalf("unexpected owner object: %q", owner)
	}
	if s.ownerObject("user-1") != owner {
		t.Fatal("expected owner object name to be stable")
	}
}

func TestMinioMetadataRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	img := &models.StoredImage{Key: "k.png", OriginalName: "cat.png", Owner: "user-1", CreatedAt: created}
	meta := imageUserMetadata(img)

	// Servers echo metadata back with the x-amz-meta- prefix stripped and canonical casing.
	echoed := map[string]string{}
	for k, v := range meta {
		echoed[strings.ToLower(k)] = v
	}
	info := imageInfoFromObject("k.png", minio.ObjectInfo{
		ContentType:  "image/png",
		Size:         10,
		LastModified: created.Add(time.Hour),
		UserMetadata: echoed,
	})
	if info.OriginalName != "cat.png" || info.Owner != "user-1" {
		t.Fatalf("unexpected metadata: %#v", info)
	}
	if !info.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at from metadata, got %s", info.CreatedAt)
	}
	if info.ContentType != "image/png" || info.SizeBytes != 10 {
		t.Fatalf("unexpected info: %#v", info)
	}
}

func TestMinioInfoDefaultsContentType(t *testing.T) {
	info := imageInfoFromObject("k", minio.ObjectInfo{})
	if info.ContentType != models.FallbackContentType {
		t.Fatalf("expected fallback content type, got %q", info.ContentType)
	}
}

func TestMinioStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("IMGSTORE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("IMGSTORE_TEST_S3_ENDPOINT not set")
	}
	ctx := context.Background()
	s, err := NewMinioStore(ctx, MinioOptions{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("IMGSTORE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("IMGSTORE_TEST_S3_SECRET_KEY"),
		Bucket:    "imgstore-test",
		Prefix:    t.Name(),
	})
	if err != nil {
		t.Fatalf("new minio store: %v", err)
	}

	img := &models.StoredImage{Key: "it.png", OriginalName: "it.png", ContentType: "image/png", SizeBytes: 3, Payload: []byte("abc"), CreatedAt: time.Now().UTC()}
	if err := s.Put(ctx, img); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "it.png")
	if err != nil || got == nil {
		t.Fatalf("get: %v (%v)", err, got)
	}
	if string(got.Payload) != "abc" || got.ContentType != "image/png" {
		t.Fatalf("unexpected image: %#v", got)
	}
	deleted, err := s.Delete(ctx, "it.png")
	if err != nil || !deleted {
		t.Fatalf("delete: %v deleted=%v", err, deleted)
	}
	deleted, err = s.Delete(ctx, "it.png")
	if err != nil || deleted {
		t.Fatalf("second delete: %v deleted=%v", err, deleted)
	}
}
