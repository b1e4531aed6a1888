package security

import (
	"golang.org/x/crypto/bcrypt"
)

// HashGuestToken returns the bcrypt hash stored on the payment row.
// The raw token is shown to the guest exactly once.
func HashGuestToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckGuestToken reports whether the presented token matches the
// stored hash.
func CheckGuestToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
