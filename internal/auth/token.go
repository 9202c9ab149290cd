// Package auth hashes and checks the admin token guarding listing endpoints.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minTokenLength = 16
	// bcrypt ignores input past 72 bytes.
	maxTokenLength = 72
	generatedBytes = 24
)

// ValidateToken checks minimal admin token requirements.
func ValidateToken(token string) error {
	if strings.TrimSpace(token) != token {
		return fmt.Errorf("token must not have surrounding whitespace")
	}
	if len(token) < minTokenLength {
		return fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	if len(token) > maxTokenLength {
		return fmt.Errorf("token must be at most %d characters", maxTokenLength)
	}
	return nil
}

// HashToken hashes one plaintext admin token for the config file.
func HashToken(token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyToken verifies a presented token against a bcrypt hash.
func VerifyToken(tokenHash, candidate string) bool {
	if strings.TrimSpace(tokenHash) == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(candidate)) == nil
}

// GenerateToken returns a random hex token suitable for HashToken.
func GenerateToken() (string, error) {
	b := make([]byte, generatedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
