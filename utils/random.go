package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns 2n uppercase hex characters from a CSPRNG.
// Used for idempotency-key suffixes on transfer attempts.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateGuestToken returns an opaque credential for guests paying
// without an account. Only its bcrypt hash is persisted.
func GenerateGuestToken() (string, error) {
	byt := make([]byte, 24)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return hex.EncodeToString(byt), nil
}
