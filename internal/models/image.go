package models

import (
	"strings"
	"time"
)

// FallbackContentType is used when a stored image has no recoverable media type.
const FallbackContentType = "application/octet-stream"

// StoredImage is one immutable image payload plus its metadata.
type StoredImage struct {
	Key          string    `json:"key"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Payload      []byte    `json:"-"`
	Owner        string    `json:"owner,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImageInfo is the metadata-only projection of a StoredImage.
type ImageInfo struct {
	Key          string    `json:"key"`
	OriginalName string    `json:"original_name,omitempty"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Owner        string    `json:"owner,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Info returns the metadata of img without its payload.
func (img *StoredImage) Info() ImageInfo {
	if img == nil {
		return ImageInfo{}
	}
	return ImageInfo{
		Key:          img.Key,
		OriginalName: img.OriginalName,
		ContentType:  img.ContentType,
		SizeBytes:    img.SizeBytes,
		Owner:        img.Owner,
		CreatedAt:    img.CreatedAt,
	}
}

// ContentTypeOrFallback returns raw, or FallbackContentType when raw is blank.
func ContentTypeOrFallback(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FallbackContentType
	}
	return raw
}

// NormalizeOwner trims an owner identifier; blank means "no owner".
func NormalizeOwner(raw string) string {
	return strings.TrimSpace(raw)
}
