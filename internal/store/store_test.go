package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"imgstore/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestPutAndGetImage(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	payload := []byte("0123456789")

	img := &models.StoredImage{
		Key:          "k1.png",
		OriginalName: "a.png",
		ContentType:  "image/png",
		SizeBytes:    int64(len(payload)),
		Payload:      payload,
		CreatedAt:    now,
	}
	if err := st.Put(ctx, img); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.Get(ctx, "k1.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected image, got nil")
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
	if got.ContentType != "image/png" || got.SizeBytes != 10 || got.OriginalName != "a.png" {
		t.Fatalf("unexpected metadata: %#v", got.Info())
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %s, got %s", now, got.CreatedAt)
	}
	if got.Owner != "" {
		t.Fatalf("expected no owner, got %q", got.Owner)
	}
}

func TestGetMissingImageReturnsNil(t *testing.T) {
	st := testStore(t)
	got, err := st.Get(context.Background(), "missing.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}

func TestPutReplacesExistingKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, &models.StoredImage{Key: "dup.gif", OriginalName: "one.gif", ContentType: "image/gif", Payload: []byte("one")}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := st.Put(ctx, &models.StoredImage{Key: "dup.gif", OriginalName: "two.gif", ContentType: "image/gif", Payload: []byte("second")}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, err := st.Get(ctx, "dup.gif")
	if err != nil || got == nil {
		t.Fatalf("get: %v (%v)", err, got)
	}
	if string(got.Payload) != "second" || got.OriginalName != "two.gif" || got.SizeBytes != 6 {
		t.Fatalf("expected replaced row, got %#v", got.Info())
	}
}

func TestPutRecordsActualPayloadSize(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, &models.StoredImage{Key: "s.png", ContentType: "image/png", SizeBytes: 999, Payload: []byte("abc")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, "s.png")
	if err != nil || got == nil {
		t.Fatalf("get: %v (%v)", err, got)
	}
	if got.SizeBytes != 3 {
		t.Fatalf("expected size 3, got %d", got.SizeBytes)
	}
}

func TestContentTypeIsStoredNotSniffed(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// PNG name with GIF bytes; the recorded type wins.
	if err := st.Put(ctx, &models.StoredImage{Key: "x.png", ContentType: "image/webp", Payload: []byte("GIF89a")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, "x.png")
	if err != nil || got == nil {
		t.Fatalf("get: %v (%v)", err, got)
	}
	if got.ContentType != "image/webp" {
		t.Fatalf("expected stored content type, got %q", got.ContentType)
	}

	if err := st.Put(ctx, &models.StoredImage{Key: "blank.png", Payload: []byte("x")}); err != nil {
		t.Fatalf("put blank: %v", err)
	}
	got, err = st.Get(ctx, "blank.png")
	if err != nil || got == nil {
		t.Fatalf("get blank: %v (%v)", err, got)
	}
	if got.ContentType != models.FallbackContentType {
		t.Fatalf("expected fallback content type, got %q", got.ContentType)
	}
}

func TestDeleteImage(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	deleted, err := st.Delete(ctx, "nope.png")
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if deleted {
		t.Fatal("expected false for missing key")
	}

	if err := st.Put(ctx, &models.StoredImage{Key: "d.png", ContentType: "image/png", Payload: []byte("x")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	deleted, err = st.Delete(ctx, "d.png")
	if err != nil || !deleted {
		t.Fatalf("delete: %v deleted=%v", err, deleted)
	}
	got, err := st.Get(ctx, "d.png")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatal("expected image to be gone")
	}
}

func TestListPagesThroughAllImages(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	total := listPageSize + 5
	for i := 0; i < total; i++ {
		key := fmt.Sprintf("img-%03d.png", i)
		if err := st.Put(ctx, &models.StoredImage{Key: key, OriginalName: key, ContentType: "image/png", Payload: []byte{byte(i)}}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	var keys []string
	for info, err := range st.List(ctx) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if info.SizeBytes != 1 {
			t.Fatalf("unexpected size for %s: %d", info.Key, info.SizeBytes)
		}
		keys = append(keys, info.Key)
	}
	if len(keys) != total {
		t.Fatalf("expected %d images, got %d", total, len(keys))
	}
	if keys[0] != "img-000.png" || keys[total-1] != fmt.Sprintf("img-%03d.png", total-1) {
		t.Fatalf("unexpected order: first=%s last=%s", keys[0], keys[total-1])
	}
}

func TestListStopsWhenConsumerBreaks(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	for _, key := range []string{"a.png", "b.png", "c.png"} {
		if err := st.Put(ctx, &models.StoredImage{Key: key, ContentType: "image/png", Payload: []byte("x")}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	seen := 0
	for _, err := range st.List(ctx) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected 1, got %d", seen)
	}

	// The connection must be free again.
	if _, err := st.Get(ctx, "a.png"); err != nil {
		t.Fatalf("get after break: %v", err)
	}
}

func TestOwnerIndex(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	key, err := st.FindByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("find empty: %v", err)
	}
	if key != "" {
		t.Fatalf("expected no key, got %q", key)
	}

	if err := st.Put(ctx, &models.StoredImage{Key: "p1.png", ContentType: "image/png", Payload: []byte("1"), Owner: "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.LinkOwner(ctx, "alice", "p1.png"); err != nil {
		t.Fatalf("link: %v", err)
	}
	key, err = st.FindByOwner(ctx, "alice")
	if err != nil || key != "p1.png" {
		t.Fatalf("find: %q %v", key, err)
	}

	if err := st.UnlinkOwner(ctx, "alice"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	key, err = st.FindByOwner(ctx, "alice")
	if err != nil || key != "" {
		t.Fatalf("expected unlinked, got %q %v", key, err)
	}

	// Image survives unlinking.
	got, err := st.Get(ctx, "p1.png")
	if err != nil || got == nil {
		t.Fatalf("get after unlink: %v (%v)", err, got)
	}
	if got.Owner != "" {
		t.Fatalf("expected owner cleared, got %q", got.Owner)
	}
}

func TestLinkOwnerRequiresExistingImage(t *testing.T) {
	st := testStore(t)
	if err := st.LinkOwner(context.Background(), "bob", "ghost.png"); err == nil {
		t.Fatal("expected error linking a missing image")
	}
}

func TestFindByOwnerPrefersNewest(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := st.Put(ctx, &models.StoredImage{Key: "old.png", Payload: []byte("o"), Owner: "carol", CreatedAt: base}); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if err := st.Put(ctx, &models.StoredImage{Key: "new.png", Payload: []byte("n"), Owner: "carol", CreatedAt: base.Add(150 * time.Millisecond)}); err != nil {
		t.Fatalf("put new: %v", err)
	}
	key, err := st.FindByOwner(ctx, "carol")
	if err != nil || key != "new.png" {
		t.Fatalf("expected new.png, got %q %v", key, err)
	}
}

func TestDBTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 1, 2, 3, 4, 5, 120000000, time.FixedZone("x", 3600))
	out, err := dbParseTime(dbFormatTime(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("expected %s, got %s", in, out)
	}
	if dbFormatTime(in) >= dbFormatTime(in.Add(5*time.Millisecond)) {
		t.Fatal("expected lexical order to follow time order")
	}
}

func TestLinkOwnerLeavesSingleTaggedRow(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// Two rows for one owner, as two racing uploads could leave them.
	for _, key := range []string{"r1.png", "r2.png"} {
		if err := st.Put(ctx, &models.StoredImage{Key: key, Payload: []byte("x"), Owner: "dave"}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := st.LinkOwner(ctx, "dave", "r1.png"); err != nil {
		t.Fatalf("link: %v", err)
	}

	r2, err := st.Get(ctx, "r2.png")
	if err != nil || r2 == nil {
		t.Fatalf("get r2: %v (%v)", err, r2)
	}
	if r2.Owner != "" {
		t.Fatalf("expected r2 untagged, got owner %q", r2.Owner)
	}
	key, err := st.FindByOwner(ctx, "dave")
	if err != nil || key != "r1.png" {
		t.Fatalf("expected r1.png, got %q %v", key, err)
	}
}
