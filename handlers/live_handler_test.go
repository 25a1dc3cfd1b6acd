package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/stretchr/testify/assert"
)

// fakeLiveStore embeds store.PollStore with a nil value; only the
// token-lookup methods the LiveHandler calls are overridden.
type fakeLiveStore struct {
	store.PollStore

	getByPublicToken func(ctx context.Context, token string) (*types.Poll, error)
	getByAdminToken  func(ctx context.Context, token string) (*types.Poll, error)
}

func (f *fakeLiveStore) GetPollByPublicToken(ctx context.Context, token string) (*types.Poll, error) {
	return f.getByPublicToken(ctx, token)
}
func (f *fakeLiveStore) GetPollByAdminToken(ctx context.Context, token string) (*types.Poll, error) {
	return f.getByAdminToken(ctx, token)
}

// The success path upgrades the connection to a websocket, which
// requires a real hijackable connection httptest.Recorder doesn't
// provide; these tests cover the token-resolution and admin-ownership
// gating that runs before the upgrade, which is where LiveHandler's
// own logic lives.

func TestConnectPublicHandler_UnknownTokenIsNotFound(t *testing.T) {
	fs := &fakeLiveStore{getByPublicToken: func(_ context.Context, token string) (*types.Poll, error) {
		return nil, store.ErrNotFound
	}}
	h := NewLiveHandler(fs, nil)
	r := newTestRouter(http.MethodGet, "/polls/public/:token/live", h.ConnectPublicHandler, "")

	req := httptest.NewRequest(http.MethodGet, "/polls/public/does-not-exist/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectAdminHandler_UnknownTokenIsNotFound(t *testing.T) {
	fs := &fakeLiveStore{getByAdminToken: func(_ context.Context, token string) (*types.Poll, error) {
		return nil, store.ErrNotFound
	}}
	h := NewLiveHandler(fs, nil)
	r := newTestRouter(http.MethodGet, "/polls/admin/:token/live", h.ConnectAdminHandler, "")

	req := httptest.NewRequest(http.MethodGet, "/polls/admin/does-not-exist/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectAdminHandler_ForbiddenForWrongOwner(t *testing.T) {
	owner := "user-owner"
	fs := &fakeLiveStore{getByAdminToken: func(_ context.Context, token string) (*types.Poll, error) {
		return &types.Poll{ID: "poll-1", CreatorUserID: &owner}, nil
	}}
	h := NewLiveHandler(fs, nil)
	r := newTestRouter(http.MethodGet, "/polls/admin/:token/live", h.ConnectAdminHandler, "someone-else")

	req := httptest.NewRequest(http.MethodGet, "/polls/admin/admin-token/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

