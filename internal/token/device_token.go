// Package token implements the Token Service (C1): signed device
// cookies for anonymous voters and the secret-salted SHA-256 hashing
// that keeps a raw device id out of storage.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	deviceTokenVersion = "v1"
	deviceTokenTTL     = 90 * 24 * time.Hour
	deviceIDBytes      = 16
	userAgentMaxLen    = 200
)

// DevicePayload is the signed payload carried inside a device token
// (§3 DeviceToken). It is never persisted server-side.
type DevicePayload struct {
	Version        string    `json:"version"`
	DeviceID       string    `json:"deviceId"`
	UserAgentPrefix string   `json:"userAgentPrefix"`
	IssuedAt       time.Time `json:"issuedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Service issues and verifies device tokens and hashes device ids for
// use as a voter-key component (§4.1).
type Service struct {
	secret []byte
}

// NewService builds a Token Service keyed by the configured HMAC
// secret. The secret must be kept stable across process restarts or
// every outstanding device cookie is invalidated.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// IssueDeviceToken mints a fresh, signed device token for a new
// anonymous voter. userAgent is truncated to 200 bytes before storage
// in the payload.
func (s *Service) IssueDeviceToken(userAgent string) (string, error) {
	deviceID, err := randomHex(deviceIDBytes)
	if err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}

	if len(userAgent) > userAgentMaxLen {
		userAgent = userAgent[:userAgentMaxLen]
	}

	now := time.Now().UTC()
	payload := DevicePayload{
		Version:         deviceTokenVersion,
		DeviceID:        deviceID,
		UserAgentPrefix: userAgent,
		IssuedAt:        now,
		ExpiresAt:       now.Add(deviceTokenTTL),
	}

	return s.sign(payload)
}

// VerifyDeviceToken checks a token's signature, version, and expiry.
// It never panics or returns an error for a malformed token — invalid
// tokens simply report valid=false, per §4.1.
func (s *Service) VerifyDeviceToken(token string) (valid bool, deviceID string) {
	encodedPayload, sig, ok := splitToken(token)
	if !ok {
		return false, ""
	}

	expectedSig := s.signature(encodedPayload)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expectedSig)) != 1 {
		return false, ""
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return false, ""
	}

	var payload DevicePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return false, ""
	}

	if payload.Version != deviceTokenVersion {
		return false, ""
	}
	if time.Now().UTC().After(payload.ExpiresAt) {
		return false, ""
	}

	return true, payload.DeviceID
}

// HashDeviceID derives the opaque voter-key component for a device id
// so the raw id never reaches storage (§4.1).
func (s *Service) HashDeviceID(deviceID string) string {
	h := sha256.Sum256(append([]byte(deviceID), s.secret...))
	return hex.EncodeToString(h[:])[:32]
}

func (s *Service) sign(payload DevicePayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal device payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return encoded + "." + s.signature(encoded), nil
}

func (s *Service) signature(encodedPayload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

func splitToken(token string) (encodedPayload, sig string, ok bool) {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
