package security

import (
	"golang.org/x/crypto/bcrypt"
)

// CompareAdminKey reports whether key matches the stored bcrypt hash. An
// empty hash never matches.
func CompareAdminKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateAdminKeyHash hashes an admin key for the ADMIN_KEY_HASH setting.
func GenerateAdminKeyHash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
