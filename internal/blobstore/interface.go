package blobstore

import (
	"context"
	"iter"

	"imgstore/internal/models"
)

// BlobStore persists image payloads with their metadata.
//
// Get returns (nil, nil) for an unknown key and Delete reports false; neither
// treats a missing key as an error.
type BlobStore interface {
	Put(ctx context.Context, img *models.StoredImage) error
	Get(ctx context.Context, key string) (*models.StoredImage, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) iter.Seq2[models.ImageInfo, error]
}

// OwnerIndex maps an owner to the key of its single current image.
type OwnerIndex interface {
	FindByOwner(ctx context.Context, owner string) (string, error)
	LinkOwner(ctx context.Context, owner, key string) error
	UnlinkOwner(ctx context.Context, owner string) error
}

// Backend is a blob store that also indexes owners.
type Backend interface {
	BlobStore
	OwnerIndex
}
