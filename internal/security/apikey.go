package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	APIKeyPrefix   = "tbk_"
	apiKeyBytes    = 32
	displayedChars = 12
)

// GenerateAPIKey returns the raw key, the hex SHA-256 used for lookup and a
// short display prefix. The raw key is never persisted.
func GenerateAPIKey() (raw string, hash string, prefix string, err error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}

	raw = APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashAPIKey(raw), raw[:displayedChars], nil
}

func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey rejects obviously malformed values before any store lookup.
func LooksLikeAPIKey(raw string) bool {
	return strings.HasPrefix(raw, APIKeyPrefix) && len(raw) > len(APIKeyPrefix)+16 && len(raw) < 128
}
