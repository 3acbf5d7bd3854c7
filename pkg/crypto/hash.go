package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// APIKeyPrefix is prepended to every issued API key so keys are
// recognizable in configuration files and secret scanners.
const APIKeyPrefix = "vx_live_"

// GenerateAPIKey returns a new raw API key and the hex SHA-256 digest that
// gets persisted. The raw key is shown to the caller exactly once.
func GenerateAPIKey() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("crypto: generating api key: %w", err)
	}
	raw = APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashAPIKey(raw), nil
}

// HashAPIKey returns the hex SHA-256 digest of a raw API key. Only the
// digest is ever stored or used for lookup.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two strings are equal in constant time.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SignHMAC256 returns the hex HMAC-SHA256 of body under secret.
func SignHMAC256(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC256 reports whether signature is the hex HMAC-SHA256 of body
// under secret. Comparison is constant time.
func VerifyHMAC256(secret, body []byte, signature string) bool {
	expected := SignHMAC256(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
