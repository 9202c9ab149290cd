package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imgstore/internal/models"
)

const (
	localTmpDir    = ".tmp"
	localOwnersDir = ".owners"
	sniffLen       = 512
)

// LocalDir stores each image as one file named by its key inside root.
// Owner links live in a hidden subdirectory so the root stays a flat
// listing of image files.
type LocalDir struct {
	root     string
	setTimes func(path string, atime, mtime time.Time) error
}

var _ Backend = (*LocalDir)(nil)

// NewLocalDir creates a directory store rooted at root, creating it if absent.
func NewLocalDir(root string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{abs, filepath.Join(abs, localTmpDir), filepath.Join(abs, localOwnersDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &LocalDir{root: abs, setTimes: os.Chtimes}, nil
}

// Root returns the absolute directory images are stored in.
func (d *LocalDir) Root() string {
	if d == nil {
		return ""
	}
	return d.root
}

// Put writes the payload under its key, replacing any existing file.
func (d *LocalDir) Put(ctx context.Context, img *models.StoredImage) error {
	if d == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if img == nil {
		return fmt.Errorf("image is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := d.pathFromKey(img.Key)
	if err != nil {
		return err
	}
	return d.writeAtomic(dst, img.Payload, img.CreatedAt)
}

// Get reads one image. The content type is inferred from the key extension,
// then from the leading bytes.
func (d *LocalDir) Get(ctx context.Context, key string) (*models.StoredImage, error) {
	if d == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &models.StoredImage{
		Key:         key,
		ContentType: sniffContentType(key, data),
		SizeBytes:   int64(len(data)),
		Payload:     data,
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

// Delete removes one image file. Missing files report false.
func (d *LocalDir) Delete(ctx context.Context, key string) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := d.pathFromKey(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List walks the root directory lazily, reading only the head of each file.
func (d *LocalDir) List(ctx context.Context) iter.Seq2[models.ImageInfo, error] {
	return func(yield func(models.ImageInfo, error) bool) {
		if d == nil {
			yield(models.ImageInfo{}, fmt.Errorf("blob store is not configured"))
			return
		}
		entries, err := os.ReadDir(d.root)
		if err != nil {
			yield(models.ImageInfo{}, err)
			return
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(models.ImageInfo{}, err)
				return
			}
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			info, err := d.statImage(name)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if !yield(info, err) || err != nil {
				return
			}
		}
	}
}

// FindByOwner returns the key linked to owner, or "" when none.
func (d *LocalDir) FindByOwner(ctx context.Context, owner string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(d.ownerLinkPath(owner))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// LinkOwner points owner at key, replacing any previous link.
func (d *LocalDir) LinkOwner(ctx context.Context, owner, key string) error {
	if d == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.pathFromKey(key); err != nil {
		return err
	}
	return d.writeAtomic(d.ownerLinkPath(owner), []byte(key), time.Time{})
}

// UnlinkOwner removes the owner link. Missing links are ignored.
func (d *LocalDir) UnlinkOwner(ctx context.Context, owner string) error {
	if d == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(d.ownerLinkPath(owner)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *LocalDir) statImage(key string) (models.ImageInfo, error) {
	path := filepath.Join(d.root, key)
	f, err := os.Open(path)
	if err != nil {
		return models.ImageInfo{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return models.ImageInfo{}, err
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return models.ImageInfo{}, err
	}
	return models.ImageInfo{
		Key:         key,
		ContentType: sniffContentType(key, head[:n]),
		SizeBytes:   stat.Size(),
		CreatedAt:   stat.ModTime().UTC(),
	}, nil
}

// writeAtomic stages data in the tmp dir and renames it over dst. A non-zero
// modTime is stamped on the staged file so dst never carries the write time.
func (d *LocalDir) writeAtomic(dst string, data []byte, modTime time.Time) error {
	tmp, err := os.CreateTemp(filepath.Join(d.root, localTmpDir), "put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if !modTime.IsZero() {
		setTimes := d.setTimes
		if setTimes == nil {
			setTimes = os.Chtimes
		}
		if err := setTimes(tmpPath, modTime, modTime); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("set image time: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (d *LocalDir) ownerLinkPath(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return filepath.Join(d.root, localOwnersDir, hex.EncodeToString(sum[:]))
}

func (d *LocalDir) pathFromKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(d.root, key), nil
}

// ValidateKey rejects keys that cannot name a flat file inside a store root.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("image key is required")
	}
	if key != strings.TrimSpace(key) || len(key) > 255 {
		return fmt.Errorf("invalid image key")
	}
	if strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid image key")
	}
	return nil
}

func sniffContentType(key string, head []byte) string {
	if ext := filepath.Ext(key); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(head) > 0 {
		if len(head) > sniffLen {
			head = head[:sniffLen]
		}
		return models.ContentTypeOrFallback(http.DetectContentType(head))
	}
	return models.FallbackContentType
}
