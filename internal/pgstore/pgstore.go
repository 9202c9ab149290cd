// Package pgstore keeps images as rows in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imgstore/internal/blobstore"
	"imgstore/internal/models"
)

const listPageSize = 200

//go:embed migrations
var migrationsFS embed.FS

// Store implements blobstore.Backend on a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

var _ blobstore.Backend = (*Store)(nil)

// Open connects to databaseURL, applies embedded migrations, and verifies
// the pool with a ping.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool}, nil
}

// Migrate runs all pending up migrations embedded in the binary.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		s.db.Close()
	}
	return nil
}

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
	_, err := s.db.Exec(ctx,
		`INSERT INTO images (image_key, original_name, content_type, size_bytes, payload, created_at, owner)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (image_key) DO UPDATE SET
		   original_name = EXCLUDED.original_name,
		   content_type = EXCLUDED.content_type,
		   size_bytes = EXCLUDED.size_bytes,
		   payload = EXCLUDED.payload,
		   created_at = EXCLUDED.created_at,
		   owner = EXCLUDED.owner`,
		img.Key, img.OriginalName, models.ContentTypeOrFallback(img.ContentType),
		int64(len(payload)), payload, created, nullableOwner(img.Owner),
	)
	if err != nil {
		return fmt.Errorf("put image: %w", err)
	}
	return nil
}

// Get fetches one image row; a missing key returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*models.StoredImage, error) {
	img := &models.StoredImage{}
	var owner *string
	err := s.db.QueryRow(ctx,
		`SELECT image_key, original_name, content_type, size_bytes, payload, created_at, owner
		 FROM images WHERE image_key = $1`,
		key,
	).Scan(&img.Key, &img.OriginalName, &img.ContentType, &img.SizeBytes, &img.Payload, &img.CreatedAt, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	if img.Payload == nil {
		img.Payload = []byte{}
	}
	if owner != nil {
		img.Owner = *owner
	}
	img.ContentType = models.ContentTypeOrFallback(img.ContentType)
	img.CreatedAt = img.CreatedAt.UTC()
	return img, nil
}

// Delete removes the row for key and reports whether one existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM images WHERE image_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List streams metadata columns in insertion order, one page per query.
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
	rows, err := s.db.Query(ctx,
		`SELECT id, image_key, original_name, content_type, size_bytes, created_at, owner
		 FROM images WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, listPageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []models.ImageInfo
	lastID := afterID
	for rows.Next() {
		var (
			id    int64
			info  models.ImageInfo
			owner *string
		)
		if err := rows.Scan(&id, &info.Key, &info.OriginalName, &info.ContentType, &info.SizeBytes, &info.CreatedAt, &owner); err != nil {
			return nil, 0, fmt.Errorf("scan image: %w", err)
		}
		if owner != nil {
			info.Owner = *owner
		}
		info.CreatedAt = info.CreatedAt.UTC()
		out = append(out, info)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	return out, lastID, nil
}

// FindByOwner returns the newest key carrying owner, or "".
func (s *Store) FindByOwner(ctx context.Context, owner string) (string, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`SELECT image_key FROM images WHERE owner = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		owner,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find by owner: %w", err)
	}
	return key, nil
}

// LinkOwner makes key the only row tagged with owner.
func (s *Store) LinkOwner(ctx context.Context, owner, key string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("link owner: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE images SET owner = NULL WHERE owner = $1 AND image_key <> $2`, owner, key); err != nil {
		return fmt.Errorf("link owner: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE images SET owner = $1 WHERE image_key = $2`, owner, key)
	if err != nil {
		return fmt.Errorf("link owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image %q not found", key)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("link owner: %w", err)
	}
	return nil
}

// UnlinkOwner clears owner from every row that carries it.
func (s *Store) UnlinkOwner(ctx context.Context, owner string) error {
	if _, err := s.db.Exec(ctx, `UPDATE images SET owner = NULL WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("unlink owner: %w", err)
	}
	return nil
}

func nullableOwner(owner string) *string {
	if owner == "" {
		return nil
	}
	return &owner
}
