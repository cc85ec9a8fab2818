package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const deviceTokenBytes = 32

// GenerateDeviceToken returns a random Base64URL token (32 bytes) and its SHA256 hash as hex
func GenerateDeviceToken() (token string, hashHex string, err error) {
	b := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashDeviceToken(token), nil
}

// HashDeviceToken returns SHA256 hex of the token
func HashDeviceToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
