package utils

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for tokens stored at rest
	"encoding/hex"
)

const (
	// RefreshTokenBytes is the entropy of a refresh token (384 bits).
	RefreshTokenBytes = 48
	// ResetTokenBytes is the entropy of a password reset token (256 bits).
	ResetTokenBytes = 32
)

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. Hex output is URL-safe.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Only digests are
// persisted so a leaked data file does not hand out live credentials.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
