package server

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"imgstore/internal/blobstore"
	"imgstore/internal/store"
)

const maxOwnerLength = 255

// UploadPolicy is the rule set for one upload call site.
type UploadPolicy struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
}

// ImageUpload is a candidate upload as declared by the client.
type ImageUpload struct {
	Payload      []byte
	DeclaredSize int64
	OriginalName string
	ContentType  string
}

// validateImageUpload applies the upload rules in order; the first failing
// rule decides the message. Only declared metadata is inspected.
func validateImageUpload(in ImageUpload, policy UploadPolicy) error {
	if in.DeclaredSize > policy.MaxSizeBytes {
		return fileTooLarge(policy)
	}
	if in.OriginalName == "" {
		return badRequestCode(fmt.Errorf("filename is required"), ErrCodeMissingFilename)
	}
	ext := strings.ToLower(store.FileExtension(in.OriginalName))
	if !slices.Contains(policy.AllowedExtensions, ext) {
		return badRequestCode(fmt.Errorf("file extension is not allowed (allowed: %s)", strings.Join(policy.AllowedExtensions, ", ")), ErrCodeExtensionNotAllowed)
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		return badRequestCode(fmt.Errorf("only image files can be uploaded"), ErrCodeNotAnImage)
	}
	return nil
}

func fileTooLarge(policy UploadPolicy) error {
	return badRequestCode(fmt.Errorf("file size exceeds the %s limit", humanize.IBytes(uint64(policy.MaxSizeBytes))), ErrCodeFileTooLarge)
}

func validateKey(key string) bool {
	return blobstore.ValidateKey(key) == nil
}

func normalizeOwner(raw string) (string, error) {
	owner := strings.TrimSpace(raw)
	if owner == "" {
		return "", badRequestCode(fmt.Errorf("owner is required"), ErrCodeMissingRequired)
	}
	if len(owner) > maxOwnerLength {
		return "", badRequestCode(fmt.Errorf("owner must be at most %d characters", maxOwnerLength), ErrCodeInvalidArgument)
	}
	for _, r := range owner {
		if unicode.IsControl(r) {
			return "", badRequestCode(fmt.Errorf("owner must not contain control characters"), ErrCodeInvalidArgument)
		}
	}
	return owner, nil
}
