// Package identity implements the Voter Identity Resolver (§4.4): a
// deterministic, never-failing voter_key derivation that lets the Vote
// Engine treat an authenticated user, a cookie-carrying anonymous
// browser, and a brand-new anonymous browser through one interface.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/pollrelay/pollengine/internal/token"
)

// Source distinguishes how a VoterKey was derived.
type Source string

const (
	SourceUser   Source = "user"
	SourceDevice Source = "device"
)

// VoterKey is the canonical voter identity threaded through the Vote
// Engine (C5) and Poll Store (C3) vote primitives. It replaces the
// "sometimes email, sometimes user_id, sometimes device cookie"
// weak typing the spec's Design Notes calls out.
type VoterKey struct {
	Source Source
	Value  string // "user:<user_id>" or "device:<hashed_device_id>"
}

func (k VoterKey) String() string { return k.Value }

// RequestInfo is the gin-agnostic subset of an inbound request the
// resolver needs, so this package has no HTTP framework dependency.
type RequestInfo struct {
	AuthenticatedUserID string // empty if anonymous
	DeviceCookie        string // raw cookie value, empty if absent
	UserAgent           string
}

// deviceCookieName is the cookie the resolver reads and, on first
// contact with an anonymous browser, sets.
const deviceCookieName = "deviceToken"
const deviceCookieMaxAge = 90 * 24 * time.Hour

// Resolver implements the three-step resolution order of §4.4.
type Resolver struct {
	tokens     *token.Service
	secureCookies bool
}

func NewResolver(tokens *token.Service, secureCookies bool) *Resolver {
	return &Resolver{tokens: tokens, secureCookies: secureCookies}
}

// Resolve never fails. When it must mint a fresh device token it
// returns the cookie to set via setCookie; callers on an HTTP layer
// should call http.SetCookie (or the gin equivalent) with it.
func (r *Resolver) Resolve(info RequestInfo) (VoterKey, *http.Cookie) {
	if info.AuthenticatedUserID != "" {
		return VoterKey{Source: SourceUser, Value: "user:" + info.AuthenticatedUserID}, nil
	}

	if info.DeviceCookie != "" {
		if valid, deviceID := r.tokens.VerifyDeviceToken(info.DeviceCookie); valid {
			return VoterKey{Source: SourceDevice, Value: "device:" + r.tokens.HashDeviceID(deviceID)}, nil
		}
	}

	newToken, err := r.tokens.IssueDeviceToken(info.UserAgent)
	if err != nil {
		// Token minting only fails on a broken entropy source; fall
		// back to a per-request random key so voting never hard-fails
		// on identity resolution, at the cost of losing repeat-vote
		// detection for this one anonymous visitor.
		return VoterKey{Source: SourceDevice, Value: "device:" + randomFallbackID()}, nil
	}

	valid, deviceID := r.tokens.VerifyDeviceToken(newToken)
	if !valid {
		return VoterKey{Source: SourceDevice, Value: "device:" + randomFallbackID()}, nil
	}

	cookie := &http.Cookie{
		Name:     deviceCookieName,
		Value:    newToken,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return VoterKey{Source: SourceDevice, Value: "device:" + r.tokens.HashDeviceID(deviceID)}, cookie
}

func randomFallbackID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// IsDeviceKey and IsUserKey are the predicates callers use to decide
// whether a VoterKey can be used as a withdrawal identity fallback
// (§4.5 withdrawal step 3).
func IsDeviceKey(k VoterKey) bool { return k.Source == SourceDevice }
func IsUserKey(k VoterKey) bool   { return k.Source == SourceUser }

// ParseUserIDFromKey extracts the user id from a "user:<id>" key, empty
// if k is not a user key.
func ParseUserIDFromKey(k VoterKey) string {
	if k.Source != SourceUser {
		return ""
	}
	return strings.TrimPrefix(k.Value, "user:")
}

// FromStoredValue reconstructs a VoterKey from a persisted voter_key
// string (which carries no separate Source column), by inspecting its
// "user:"/"device:" prefix.
func FromStoredValue(value string) VoterKey {
	if strings.HasPrefix(value, "user:") {
		return VoterKey{Source: SourceUser, Value: value}
	}
	return VoterKey{Source: SourceDevice, Value: value}
}
