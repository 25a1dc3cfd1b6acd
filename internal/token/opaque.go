package token

import (
	"crypto/rand"
	"encoding/base64"
)

const opaqueTokenBytes = 32

// NewOpaqueToken generates a 32-byte random, URL-safe token suitable
// for admin_token, public_token, and voter_edit_token (§3): unique,
// unforgeable, and unrelated to the device-token HMAC scheme.
func NewOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
