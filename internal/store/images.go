package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"imgstore/internal/models"
)

const (
	listPageSize = 200

	// Fixed width so created_at sorts lexically.
	dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Put inserts an image row or replaces the row stored under the same key.
func (s *Store) Put(ctx context.Context, img *models.StoredImage) error {
	if img == nil {
		return fmt.Errorf("image is required")
	}
	if strings.TrimSpace(img.Key) == "" {
		return fmt.Errorf("image key is required")
	}
	created := img.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	payload := img.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO images (image_key, original_name, content_type, size_bytes, payload, created_at, owner)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(image_key) DO UPDATE SET
  original_name = excluded.original_name,
  content_type = excluded.content_type,
  size_bytes = excluded.size_bytes,
  payload = excluded.payload,
  created_at = excluded.created_at,
  owner = excluded.owner`,
		img.Key,
		img.OriginalName,
		models.ContentTypeOrFallback(img.ContentType),
		int64(len(payload)),
		payload,
		dbFormatTime(created),
		toNullString(img.Owner),
	)
	return err
}

// Get returns the image stored under key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*models.StoredImage, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT image_key, original_name, content_type, size_bytes, payload, created_at, owner
FROM images WHERE image_key = ?`, key)

	var (
		img       models.StoredImage
		payload   []byte
		createdAt string
		owner     sql.NullString
	)
	if err := row.Scan(&img.Key, &img.OriginalName, &img.ContentType, &img.SizeBytes, &payload, &createdAt, &owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []byte{}
	}
	img.Payload = payload
	img.CreatedAt = parsed
	img.Owner = owner.String
	img.ContentType = models.ContentTypeOrFallback(img.ContentType)
	return &img, nil
}

// Delete removes the row for key and reports whether one existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE image_key = ?", key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List streams image metadata in insertion order. Rows are fetched in pages
// so no connection is held while the caller consumes entries.
func (s *Store) List(ctx context.Context) iter.Seq2[models.ImageInfo, error] {
	return func(yield func(models.ImageInfo, error) bool) {
		var lastID int64
		for {
			page, next, err := s.listPage(ctx, lastID)
			if err != nil {
				yield(models.ImageInfo{}, err)
				return
			}
			for _, info := range page {
				if !yield(info, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			lastID = next
		}
	}
}

func (s *Store) listPage(ctx context.Context, afterID int64) ([]models.ImageInfo, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, image_key, original_name, content_type, size_bytes, created_at, owner
FROM images WHERE id > ? ORDER BY id LIMIT ?`, afterID, listPageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out    []models.ImageInfo
		lastID = afterID
	)
	for rows.Next() {
		var (
			id        int64
			info      models.ImageInfo
			createdAt string
			owner     sql.NullString
		)
		if err := rows.Scan(&id, &info.Key, &info.OriginalName, &info.ContentType, &info.SizeBytes, &createdAt, &owner); err != nil {
			return nil, 0, err
		}
		parsed, err := dbParseTime(createdAt)
		if err != nil {
			return nil, 0, err
		}
		info.CreatedAt = parsed
		info.Owner = owner.String
		out = append(out, info)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, lastID, nil
}

// FindByOwner returns the most recent key linked to owner, or "".
func (s *Store) FindByOwner(ctx context.Context, owner string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
SELECT image_key FROM images WHERE owner = ?
ORDER BY created_at DESC, id DESC LIMIT 1`, owner).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// LinkOwner makes key the only row tagged with owner.
func (s *Store) LinkOwner(ctx context.Context, owner, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE images SET owner = NULL WHERE owner = ? AND image_key <> ?", owner, key); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "UPDATE images SET owner = ? WHERE image_key = ?", owner, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("image %q not found", key)
	}
	return tx.Commit()
}

// UnlinkOwner clears owner from every row that carries it.
func (s *Store) UnlinkOwner(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE images SET owner = NULL WHERE owner = ?", owner)
	return err
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t, nil
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
