package identity

import (
	"context"
	"testing"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_AuthenticatedUserTakesPriority(t *testing.T) {
	r := NewResolver(token.NewService("test-secret"), false)

	key, cookie := r.Resolve(RequestInfo{
		AuthenticatedUserID: "user-1",
		DeviceCookie:        "whatever-garbage",
	})

	assert.Equal(t, SourceUser, key.Source)
	assert.Equal(t, "user:user-1", key.Value)
	assert.Nil(t, cookie)
}

func TestResolve_ValidDeviceCookieReused(t *testing.T) {
	tokens := token.NewService("test-secret")
	r := NewResolver(tokens, false)

	issued, err := tokens.IssueDeviceToken("test-agent")
	require.NoError(t, err)

	key, cookie := r.Resolve(RequestInfo{DeviceCookie: issued, UserAgent: "test-agent"})

	assert.Equal(t, SourceDevice, key.Source)
	assert.Nil(t, cookie)

	key2, _ := r.Resolve(RequestInfo{DeviceCookie: issued, UserAgent: "test-agent"})
	assert.Equal(t, key.Value, key2.Value, "same cookie must resolve to the same voter key")
}

func TestResolve_MissingCookieMintsOne(t *testing.T) {
	r := NewResolver(token.NewService("test-secret"), true)

	key, cookie := r.Resolve(RequestInfo{UserAgent: "test-agent"})

	assert.Equal(t, SourceDevice, key.Source)
	require.NotNil(t, cookie)
	assert.Equal(t, "deviceToken", cookie.Name)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
}

func TestResolve_InvalidCookieFallsBackToFreshToken(t *testing.T) {
	r := NewResolver(token.NewService("test-secret"), false)

	key, cookie := r.Resolve(RequestInfo{DeviceCookie: "not-a-real-token", UserAgent: "test-agent"})

	assert.Equal(t, SourceDevice, key.Source)
	require.NotNil(t, cookie)
}

func TestIsDeviceKeyAndIsUserKey(t *testing.T) {
	userKey := VoterKey{Source: SourceUser, Value: "user:1"}
	deviceKey := VoterKey{Source: SourceDevice, Value: "device:abc"}

	assert.True(t, IsUserKey(userKey))
	assert.False(t, IsDeviceKey(userKey))
	assert.True(t, IsDeviceKey(deviceKey))
	assert.False(t, IsUserKey(deviceKey))
}

func TestParseUserIDFromKey(t *testing.T) {
	assert.Equal(t, "user-42", ParseUserIDFromKey(VoterKey{Source: SourceUser, Value: "user:user-42"}))
	assert.Equal(t, "", ParseUserIDFromKey(VoterKey{Source: SourceDevice, Value: "device:abc"}))
}

func TestFromStoredValue(t *testing.T) {
	assert.Equal(t, VoterKey{Source: SourceUser, Value: "user:1"}, FromStoredValue("user:1"))
	assert.Equal(t, VoterKey{Source: SourceDevice, Value: "device:abc"}, FromStoredValue("device:abc"))
}

type fakeUserLookup struct {
	owner string
	err   error
}

func (f fakeUserLookup) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	return f.owner, f.err
}

func TestCheckEmailOwnership_EmptyEmailAllowed(t *testing.T) {
	err := CheckEmailOwnership(context.Background(), fakeUserLookup{}, "", "")
	assert.NoError(t, err)
}

func TestCheckEmailOwnership_UnregisteredEmailAllowed(t *testing.T) {
	err := CheckEmailOwnership(context.Background(), fakeUserLookup{owner: ""}, "nobody@example.com", "")
	assert.NoError(t, err)
}

func TestCheckEmailOwnership_RegisteredEmailRequiresLogin(t *testing.T) {
	err := CheckEmailOwnership(context.Background(), fakeUserLookup{owner: "user-1"}, "owner@example.com", "")
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ConflictError, appErr.Type)
}

func TestCheckEmailOwnership_WrongAuthenticatedUserRejected(t *testing.T) {
	err := CheckEmailOwnership(context.Background(), fakeUserLookup{owner: "user-1"}, "owner@example.com", "user-2")
	require.Error(t, err)
}

func TestCheckEmailOwnership_MatchingAuthenticatedUserAllowed(t *testing.T) {
	err := CheckEmailOwnership(context.Background(), fakeUserLookup{owner: "user-1"}, "owner@example.com", "user-1")
	assert.NoError(t, err)
}
