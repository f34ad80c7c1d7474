package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix marks every issued API key
	KeyPrefix = "llk_"

	keyEntropyBytes  = 24
	displayPrefixLen = 8
	minKeyLength     = 20
	maxKeyLength     = 50
)

// GenerateKey returns a new raw API key: the llk_ prefix followed by 24
// random bytes in unpadded base64url.
func GenerateKey() (string, error) {
	buf := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the hex SHA-256 digest stored in place of the raw key
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the first characters of a raw key, safe to show in listings
func DisplayPrefix(raw string) string {
	if len(raw) <= displayPrefixLen {
		return raw
	}
	return raw[:displayPrefixLen]
}

// LooksLikeKey reports whether a bearer token is meant as an API key rather
// than a session token
func LooksLikeKey(token string) bool {
	return strings.HasPrefix(token, KeyPrefix)
}

// ValidateFormat checks shape only. It never touches storage.
func ValidateFormat(candidate string) bool {
	if len(candidate) < minKeyLength || len(candidate) > maxKeyLength {
		return false
	}
	if !LooksLikeKey(candidate) {
		return false
	}
	for _, c := range candidate[len(KeyPrefix):] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
