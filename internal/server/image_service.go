package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"imgstore/internal/blobstore"
	"imgstore/internal/models"
	"imgstore/internal/store"
)

// ImageService composes validation, key generation, the blob store and the
// owner index into the upload, fetch and delete operations.
type ImageService struct {
	backend       blobstore.Backend
	generalPolicy UploadPolicy
	ownerPolicy   UploadPolicy
	logger        *slog.Logger
	now           func() time.Time
	newKey        func(string) string
}

// NewImageService constructs an ImageService over backend.
func NewImageService(backend blobstore.Backend, generalPolicy, ownerPolicy UploadPolicy, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		backend:       backend,
		generalPolicy: generalPolicy,
		ownerPolicy:   ownerPolicy,
		logger:        logger,
		now:           time.Now,
		newKey:        store.GenerateImageKey,
	}
}

// UploadGeneral validates and stores an image with no owner.
func (s *ImageService) UploadGeneral(ctx context.Context, in ImageUpload) (models.ImageInfo, error) {
	if err := validateImageUpload(in, s.generalPolicy); err != nil {
		return models.ImageInfo{}, err
	}
	img := s.newImage(in)
	if err := s.backend.Put(ctx, img); err != nil {
		return models.ImageInfo{}, storeFailure(fmt.Errorf("store image: %w", err))
	}
	return img.Info(), nil
}

// UploadForOwner validates against the owner policy and, when owner is not
// blank, supersedes the owner's previous image. A non-blank owner must pass
// the same check as the fetch and delete paths.
func (s *ImageService) UploadForOwner(ctx context.Context, in ImageUpload, owner string) (models.ImageInfo, error) {
	if err := validateImageUpload(in, s.ownerPolicy); err != nil {
		return models.ImageInfo{}, err
	}
	img := s.newImage(in)

	if models.NormalizeOwner(owner) == "" {
		if err := s.backend.Put(ctx, img); err != nil {
			return models.ImageInfo{}, storeFailure(fmt.Errorf("store image: %w", err))
		}
		return img.Info(), nil
	}

	owner, err := normalizeOwner(owner)
	if err != nil {
		return models.ImageInfo{}, err
	}
	if err := s.replaceForOwner(ctx, owner, img); err != nil {
		return models.ImageInfo{}, err
	}
	return img.Info(), nil
}

// replaceForOwner deletes the owner's current image before writing the new
// one. A failure after the delete leaves the owner with no image; no lock is
// held, so concurrent uploads for one owner race and the last link wins.
func (s *ImageService) replaceForOwner(ctx context.Context, owner string, img *models.StoredImage) error {
	oldKey, err := s.backend.FindByOwner(ctx, owner)
	if err != nil {
		return storeFailure(fmt.Errorf("find owner image: %w", err))
	}
	if oldKey != "" {
		if _, err := s.backend.Delete(ctx, oldKey); err != nil {
			return storeFailure(fmt.Errorf("delete superseded image: %w", err))
		}
		if err := s.backend.UnlinkOwner(ctx, owner); err != nil {
			return storeFailure(fmt.Errorf("unlink owner: %w", err))
		}
		s.logger.Info("superseded owner image", "owner", owner, "old_key", oldKey, "new_key", img.Key)
	}

	img.Owner = owner
	if err := s.backend.Put(ctx, img); err != nil {
		return storeFailure(fmt.Errorf("store image: %w", err))
	}
	if err := s.backend.LinkOwner(ctx, owner, img.Key); err != nil {
		return storeFailure(fmt.Errorf("link owner: %w", err))
	}
	return nil
}

// FetchByKey returns the image stored under key.
func (s *ImageService) FetchByKey(ctx context.Context, key string) (*models.StoredImage, error) {
	if !validateKey(key) {
		return nil, imageNotFound(key)
	}
	img, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, storeFailure(fmt.Errorf("get image: %w", err))
	}
	if img == nil {
		return nil, imageNotFound(key)
	}
	img.ContentType = models.ContentTypeOrFallback(img.ContentType)
	return img, nil
}

// FetchByOwner returns the owner's current image.
func (s *ImageService) FetchByOwner(ctx context.Context, owner string) (*models.StoredImage, error) {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return nil, err
	}
	key, err := s.backend.FindByOwner(ctx, owner)
	if err != nil {
		return nil, storeFailure(fmt.Errorf("find owner image: %w", err))
	}
	if key == "" {
		return nil, ownerImageNotFound(owner)
	}
	img, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, storeFailure(fmt.Errorf("get image: %w", err))
	}
	if img == nil {
		// Dangling link left by an interrupted replace.
		return nil, ownerImageNotFound(owner)
	}
	img.ContentType = models.ContentTypeOrFallback(img.ContentType)
	return img, nil
}

// DeleteByKey removes one image. Unknown or malformed keys report false.
func (s *ImageService) DeleteByKey(ctx context.Context, key string) (bool, error) {
	if !validateKey(key) {
		return false, nil
	}
	deleted, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, storeFailure(fmt.Errorf("delete image: %w", err))
	}
	return deleted, nil
}

// DeleteByOwner removes the owner's current image and its link.
func (s *ImageService) DeleteByOwner(ctx context.Context, owner string) (bool, error) {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return false, err
	}
	key, err := s.backend.FindByOwner(ctx, owner)
	if err != nil {
		return false, storeFailure(fmt.Errorf("find owner image: %w", err))
	}
	if key == "" {
		return false, nil
	}
	deleted, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, storeFailure(fmt.Errorf("delete image: %w", err))
	}
	if err := s.backend.UnlinkOwner(ctx, owner); err != nil {
		return deleted, storeFailure(fmt.Errorf("unlink owner: %w", err))
	}
	return deleted, nil
}

// ListImages collects image metadata; limit <= 0 means no limit.
func (s *ImageService) ListImages(ctx context.Context, limit int) ([]models.ImageInfo, error) {
	out := make([]models.ImageInfo, 0)
	for info, err := range s.backend.List(ctx) {
		if err != nil {
			return nil, storeFailure(fmt.Errorf("list images: %w", err))
		}
		out = append(out, info)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *ImageService) newImage(in ImageUpload) *models.StoredImage {
	return &models.StoredImage{
		Key:          s.newKey(in.OriginalName),
		OriginalName: in.OriginalName,
		ContentType:  in.ContentType,
		SizeBytes:    int64(len(in.Payload)),
		Payload:      in.Payload,
		CreatedAt:    s.now().UTC(),
	}
}

func imageNotFound(key string) error {
	return notFoundCode(fmt.Errorf("image %q not found", key), ErrCodeImageNotFound)
}

func ownerImageNotFound(owner string) error {
	return notFoundCode(fmt.Errorf("no image for owner %q", owner), ErrCodeOwnerImageNotFound)
}

// IsValidationError reports whether err rejected the input before any store call.
func IsValidationError(err error) bool {
	var apiErr apiError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusBadRequest
}

// IsNotFoundError reports whether err is an unknown key or owner.
func IsNotFoundError(err error) bool {
	var apiErr apiError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound
}

// IsStoreError reports whether err came from the backing store.
func IsStoreError(err error) bool {
	var apiErr apiError
	return errors.As(err, &apiErr) && apiErr.errCode == ErrCodeStoreFailure
}
