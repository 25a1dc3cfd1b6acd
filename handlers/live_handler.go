package handlers

import (
	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/live"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/gin-gonic/gin"
)

// LiveHandler resolves a poll token to its canonical channel id and
// delegates the upgraded connection to the internal/live dispatcher;
// admin-only gating for the admin-token route happens here, not in
// live.Handler.
type LiveHandler struct {
	store   store.PollStore
	streams *live.Handler
}

func NewLiveHandler(pollStore store.PollStore, streams *live.Handler) *LiveHandler {
	return &LiveHandler{store: pollStore, streams: streams}
}

// ConnectPublicHandler handles GET /polls/public/:token/live.
func (h *LiveHandler) ConnectPublicHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}
	h.streams.HandleConnect(c, live.CanonicalChannelID(poll.ID), viewerID(c))
}

// ConnectAdminHandler handles GET /polls/admin/:token/live.
func (h *LiveHandler) ConnectAdminHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}
	if poll.CreatorUserID != nil {
		if userID := getUserIDFromContext(c); userID != *poll.CreatorUserID {
			_ = c.Error(errors.Forbidden("not authorized", "this poll belongs to another account"))
			return
		}
	}
	h.streams.HandleConnect(c, live.CanonicalChannelID(poll.ID), viewerID(c))
}

func viewerID(c *gin.Context) string {
	if userID := getUserIDFromContext(c); userID != "" {
		return userID
	}
	if cookie, err := c.Cookie(deviceCookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.ClientIP() + ":" + c.Request.RemoteAddr
}
