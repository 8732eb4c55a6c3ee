package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// refreshSecretBytes is the entropy of a refresh secret before encoding.
const refreshSecretBytes = 48

// NewRefreshSecret returns a random refresh secret and the hash to persist.
// The plaintext is never stored.
func NewRefreshSecret() (string, []byte, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(b)
	return plaintext, HashRefreshSecret(plaintext), nil
}

// HashRefreshSecret is the one-way transform used to look refresh secrets up.
func HashRefreshSecret(plaintext string) []byte {
	h := sha256.Sum256([]byte(plaintext))
	return h[:]
}

// EqualHash compares two hashes in constant time.
func EqualHash(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
