package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imgstore/internal/models"
)

const (
	metaOriginalName = "Original-Name"
	metaOwner        = "Owner"
	metaCreatedAt    = "Created-At"
)

// MinioOptions configures an S3-compatible bucket connection.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioStore keeps images as objects in an S3-compatible bucket. Metadata
// travels as object user metadata; owner links are small objects under a
// separate prefix.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Backend = (*MinioStore)(nil)

// NewMinioStore connects to the endpoint and creates the bucket when missing.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
	}
	return NewMinioStoreWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Put uploads the payload, replacing any object under the same key.
func (s *MinioStore) Put(ctx context.Context, img *models.StoredImage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if img == nil {
		return fmt.Errorf("image is required")
	}
	if err := ValidateKey(img.Key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.imageObject(img.Key), bytes.NewReader(img.Payload), int64(len(img.Payload)), minio.PutObjectOptions{
		ContentType:  models.ContentTypeOrFallback(img.ContentType),
		UserMetadata: imageUserMetadata(img),
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", img.Key, err)
	}
	return nil
}

// Get downloads one image; missing objects return (nil, nil).
func (s *MinioStore) Get(ctx context.Context, key string) (*models.StoredImage, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.imageObject(key), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isMinioNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}

	meta := imageInfoFromObject(key, info)
	return &models.StoredImage{
		Key:          key,
		OriginalName: meta.OriginalName,
		ContentType:  meta.ContentType,
		SizeBytes:    int64(len(data)),
		Payload:      data,
		Owner:        meta.Owner,
		CreatedAt:    meta.CreatedAt,
	}, nil
}

// Delete removes one object, reporting whether it existed.
func (s *MinioStore) Delete(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	object := s.imageObject(key)
	if _, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List streams image metadata, one StatObject per entry.
func (s *MinioStore) List(ctx context.Context) iter.Seq2[models.ImageInfo, error] {
	return func(yield func(models.ImageInfo, error) bool) {
		if s == nil || s.client == nil {
			yield(models.ImageInfo{}, fmt.Errorf("blob store is not configured"))
			return
		}
		listCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		imagesPrefix := s.imageObject("") + "/"
		for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: imagesPrefix}) {
			if obj.Err != nil {
				yield(models.ImageInfo{}, obj.Err)
				return
			}
			key := strings.TrimPrefix(obj.Key, imagesPrefix)
			if key == "" {
				continue
			}
			stat, err := s.client.StatObject(listCtx, s.bucket, obj.Key, minio.StatObjectOptions{})
			if err != nil {
				if isMinioNotFound(err) {
					continue
				}
				yield(models.ImageInfo{}, err)
				return
			}
			if !yield(imageInfoFromObject(key, stat), nil) {
				return
			}
		}
	}
}

// FindByOwner reads the owner link object.
func (s *MinioStore) FindByOwner(ctx context.Context, owner string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.ownerObject(owner), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return "", nil
		}
		return "", err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// LinkOwner overwrites the owner link object with key.
func (s *MinioStore) LinkOwner(ctx context.Context, owner, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.ownerObject(owner), strings.NewReader(key), int64(len(key)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	return err
}

// UnlinkOwner removes the owner link object.
func (s *MinioStore) UnlinkOwner(ctx context.Context, owner string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	err := s.client.RemoveObject(ctx, s.bucket, s.ownerObject(owner), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return err
	}
	return nil
}

func (s *MinioStore) imageObject(key string) string {
	return path.Join(s.prefix, "images", key)
}

func (s *MinioStore) ownerObject(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return path.Join(s.prefix, "owners", hex.EncodeToString(sum[:]))
}

func imageUserMetadata(img *models.StoredImage) map[string]string {
	meta := map[string]string{}
	if img.OriginalName != "" {
		meta[metaOriginalName] = img.OriginalName
	}
	if img.Owner != "" {
		meta[metaOwner] = img.Owner
	}
	if !img.CreatedAt.IsZero() {
		meta[metaCreatedAt] = img.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return meta
}

func imageInfoFromObject(key string, info minio.ObjectInfo) models.ImageInfo {
	out := models.ImageInfo{
		Key:          key,
		OriginalName: lookupUserMetadata(info.UserMetadata, metaOriginalName),
		ContentType:  models.ContentTypeOrFallback(info.ContentType),
		SizeBytes:    info.Size,
		Owner:        lookupUserMetadata(info.UserMetadata, metaOwner),
		CreatedAt:    info.LastModified.UTC(),
	}
	if raw := lookupUserMetadata(info.UserMetadata, metaCreatedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			out.CreatedAt = parsed
		}
	}
	return out
}

func lookupUserMetadata(meta map[string]string, name string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func isMinioNotFound(err error) bool {
	if err == nil {
		return false
	}
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}
