package store

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateImageKey returns a random storage key carrying the extension of
// originalName with its case preserved. No uniqueness check is made; the
// 122 random bits of a v4 UUID are the only collision defense.
func GenerateImageKey(originalName string) string {
	return uuid.NewString() + "." + FileExtension(originalName)
}

// FileExtension returns the text after the last "." in name, or "".
func FileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
