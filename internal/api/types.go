package api

import "imgstore/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse describes a stored upload.
type UploadResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
	Owner       string `json:"owner,omitempty"`
}

// DeleteResponse reports whether a delete removed anything.
type DeleteResponse struct {
	Key     string `json:"key,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Deleted bool   `json:"deleted"`
}

// ImageListResponse is the admin listing of stored image metadata.
type ImageListResponse struct {
	Images []models.ImageInfo `json:"images"`
	Count  int                `json:"count"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// FetchedImage is a downloaded image body with its response headers.
type FetchedImage struct {
	ContentType string
	Data        []byte
}
