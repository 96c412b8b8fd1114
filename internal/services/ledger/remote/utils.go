package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC256 of body under key.
func VerifySignature(body, key []byte, signature string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(signature), []byte(expected))
}
