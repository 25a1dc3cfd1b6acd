package handlers

import (
	"net/http"
	"strings"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/results"
	"github.com/pollrelay/pollengine/internal/scheduler"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/gin-gonic/gin"
)

// PollHandler serves the poll-lifecycle routes of §6: create, read
// (public/admin), update, delete, finalize, options, and my-polls /
// shared-polls.
type PollHandler struct {
	store    store.PollStore
	resolver VoterResolver
	notifier Notifier
}

func NewPollHandler(pollStore store.PollStore, resolver VoterResolver, notifier Notifier) *PollHandler {
	return &PollHandler{store: pollStore, resolver: resolver, notifier: notifier}
}

// CreatePollHandler handles POST /polls.
func (h *PollHandler) CreatePollHandler(c *gin.Context) {
	var req types.CreatePollRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	options := make([]types.Option, 0, len(req.Options))
	for i, in := range req.Options {
		order := i
		if in.Order != nil {
			order = *in.Order
		}
		options = append(options, types.Option{
			Text:        in.Text,
			ImageURL:    in.ImageURL,
			AltText:     in.AltText,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			MaxCapacity: in.MaxCapacity,
			Order:       order,
		})
	}

	poll := &types.Poll{
		Kind:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		Flags:       req.Flags,
		ExpiryReminder: types.ExpiryReminder{
			Enabled:     req.EnableExpiryReminder,
			HoursBefore: req.ExpiryReminderHours,
		},
	}
	if userID := getUserIDFromContext(c); userID != "" {
		poll.CreatorUserID = &userID
	} else if req.CreatorEmail != "" {
		email := strings.ToLower(req.CreatorEmail)
		poll.CreatorEmail = &email
	}

	created, createdOptions, err := h.store.CreatePoll(c.Request.Context(), poll, options)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := results.BuildPollResponse(created, createdOptions, nil, true, true, "")
	c.JSON(http.StatusCreated, types.CreatePollResponse{
		Poll:        resp,
		PublicToken: created.PublicToken,
		AdminToken:  created.AdminToken,
	})
}

// GetPublicPollHandler handles GET /polls/public/:token — the
// sanitised view (no admin token) any voter can load.
func (h *PollHandler) GetPublicPollHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}
	h.respondPoll(c, poll, false)
}

// GetAdminPollHandler handles GET /polls/admin/:token. If the poll
// carries a creatorUserId, the caller's session must match it.
func (h *PollHandler) GetAdminPollHandler(c *gin.Context) {
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
	h.respondPoll(c, poll, true)
}

func (h *PollHandler) respondPoll(c *gin.Context, poll *types.Poll, includeAdminToken bool) {
	options, err := h.store.ListOptions(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	votes, err := h.store.ListVotesByPoll(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	authenticatedUserID, deviceCookie, userAgent := requestInfoFromContext(c)
	voterKey, cookie := h.resolver.Resolve(identity.RequestInfo{
		AuthenticatedUserID: authenticatedUserID,
		DeviceCookie:        deviceCookie,
		UserAgent:           userAgent,
	})
	applyDeviceCookie(c, cookie)

	canSeeResults := includeAdminToken || results.CanViewResults(poll, false, authenticatedUserID)
	resp := results.BuildPollResponse(poll, options, votes, includeAdminToken, canSeeResults, voterKey.String())
	c.JSON(http.StatusOK, resp)
}

// UpdatePollHandler handles PATCH /polls/admin/:token.
func (h *PollHandler) UpdatePollHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}

	var req types.UpdatePollRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	patch := store.PollPatch{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
		Flags:       req.Flags,
	}
	if req.ExpiresAt != nil {
		unix := req.ExpiresAt.Unix()
		patch.ExpiresAt = &unix
	}
	if req.EnableExpiryReminder != nil {
		patch.EnableExpiryReminder = req.EnableExpiryReminder
	}
	if req.ExpiryReminderHours != nil {
		patch.ExpiryReminderHours = req.ExpiryReminderHours
	}

	updated, err := h.store.UpdatePoll(c.Request.Context(), poll.ID, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respondPoll(c, updated, true)
}

// DeletePollHandler handles DELETE /polls/admin/:token.
func (h *PollHandler) DeletePollHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}
	if err := h.store.DeletePoll(c.Request.Context(), poll.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "poll deleted"})
}

// FinalizePollHandler handles POST /polls/admin/:token/finalize.
// optionId == 0 means "un-finalise".
func (h *PollHandler) FinalizePollHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}

	var req types.FinalizePollRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	patch := store.PollPatch{}
	if req.OptionID == 0 {
		patch.ClearFinalOptionID = true
	} else {
		id := req.OptionID
		patch.FinalOptionID = &id
	}

	updated, err := h.store.UpdatePoll(c.Request.Context(), poll.ID, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respondPoll(c, updated, true)
}

// RemindHandler handles POST /polls/admin/:token/remind: the
// creator's manual "send reminder now" action, guarded by §4.8's
// max-3/min-4h rule.
func (h *PollHandler) RemindHandler(c *gin.Context) {
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

	if err := scheduler.CheckManualReminderAllowed(c.Request.Context(), h.store, poll.ID); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.store.CreateNotificationLog(c.Request.Context(), &types.NotificationLog{
		PollID: poll.ID,
		Type:   types.NotificationManualReminder,
	}); err != nil {
		_ = c.Error(err)
		return
	}

	if h.notifier != nil {
		h.notifier.EnqueueExpiryReminder(c.Request.Context(), poll)
	}
	c.JSON(http.StatusOK, gin.H{"message": "reminder sent"})
}

// AddOptionHandler handles POST /polls/admin/:token/options.
func (h *PollHandler) AddOptionHandler(c *gin.Context) {
	token := c.Param("token")
	poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}

	var in types.PollOptionInput
	if !bindJSONOrError(c, &in) {
		return
	}

	order := 0
	if in.Order != nil {
		order = *in.Order
	}
	opt := &types.Option{
		PollID:      poll.ID,
		Text:        in.Text,
		ImageURL:    in.ImageURL,
		AltText:     in.AltText,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		MaxCapacity: in.MaxCapacity,
		Order:       order,
	}
	created, err := h.store.AddOption(c.Request.Context(), opt)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateOptionHandler handles PATCH /polls/admin/:token/options/:id.
func (h *PollHandler) UpdateOptionHandler(c *gin.Context) {
	token := c.Param("token")
	if _, err := h.store.GetPollByAdminToken(c.Request.Context(), token); err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}

	optionID, ok := parseIntParam(c, "id")
	if !ok {
		return
	}

	var body struct {
		Text        *string    `json:"text,omitempty"`
		ImageURL    *string    `json:"imageUrl,omitempty"`
		AltText     *string    `json:"altText,omitempty"`
		StartTime   *int64     `json:"startTime,omitempty"`
		EndTime     *int64     `json:"endTime,omitempty"`
		MaxCapacity *int       `json:"maxCapacity,omitempty"`
		Order       *int       `json:"order,omitempty"`
	}
	if !bindJSONOrError(c, &body) {
		return
	}

	patch := store.OptionPatch{
		Text:        body.Text,
		ImageURL:    body.ImageURL,
		AltText:     body.AltText,
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
		MaxCapacity: body.MaxCapacity,
		Order:       body.Order,
	}
	updated, err := h.store.UpdateOption(c.Request.Context(), optionID, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteOptionHandler handles DELETE /polls/admin/:token/options/:id.
func (h *PollHandler) DeleteOptionHandler(c *gin.Context) {
	token := c.Param("token")
	if _, err := h.store.GetPollByAdminToken(c.Request.Context(), token); err != nil {
		_ = c.Error(mapStoreError(err, "poll", token))
		return
	}
	optionID, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteOption(c.Request.Context(), optionID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "option deleted"})
}

// ResultsHandler handles GET /polls/:token/results, accepting either a
// public or admin token.
func (h *PollHandler) ResultsHandler(c *gin.Context) {
	token := c.Param("token")
	poll, isAdmin, err := h.resolvePollByEitherToken(c, token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	userID := getUserIDFromContext(c)
	if !results.CanViewResults(poll, isAdmin, userID) {
		_ = c.Error(results.VisibilityError())
		return
	}

	options, err := h.store.ListOptions(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	votes, err := h.store.ListVotesByPoll(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, results.Aggregate(poll, options, votes))
}

// resolvePollByEitherToken tries the admin token first (since it's a
// superset), falling back to the public token.
func (h *PollHandler) resolvePollByEitherToken(c *gin.Context, token string) (*types.Poll, bool, error) {
	if poll, err := h.store.GetPollByAdminToken(c.Request.Context(), token); err == nil {
		return poll, true, nil
	}
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), token)
	if err != nil {
		return nil, false, mapStoreError(err, "poll", token)
	}
	return poll, false, nil
}

// EmailCheckHandler handles GET /polls/email-check?email=..., per
// §4.4: front-ends call this before voting to learn whether an email
// belongs to a registered account. The random 100-150ms delay and the
// endpoint's own rate-limit bucket (wired in router.go) keep the
// response from leaking that information via timing.
func (h *PollHandler) EmailCheckHandler(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		_ = c.Error(errors.ValidationFailed("email is required", "pass ?email="))
		return
	}

	identity.EmailExistenceDelay()

	_, err := h.store.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": true})
}

// MyPollsHandler handles GET /polls/my-polls (auth required).
func (h *PollHandler) MyPollsHandler(c *gin.Context) {
	userID := getUserIDFromContext(c)
	if userID == "" {
		_ = c.Error(errors.Unauthorized("not_authenticated", "authentication required"))
		return
	}
	polls, err := h.store.ListPollsByCreatorUserID(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.summarize(c, polls)})
}

// SharedPollsHandler handles GET /polls/shared-polls (auth required):
// polls created by this account's email before it had an account.
func (h *PollHandler) SharedPollsHandler(c *gin.Context) {
	userID := getUserIDFromContext(c)
	if userID == "" {
		_ = c.Error(errors.Unauthorized("not_authenticated", "authentication required"))
		return
	}
	email := getUserEmailFromContext(c)
	if email == "" {
		c.JSON(http.StatusOK, gin.H{"data": []types.PollResponse{}})
		return
	}
	polls, err := h.store.ListPollsByCreatorEmail(c.Request.Context(), email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.summarize(c, polls)})
}

func (h *PollHandler) summarize(c *gin.Context, polls []*types.Poll) []types.PollResponse {
	out := make([]types.PollResponse, 0, len(polls))
	for _, p := range polls {
		options, err := h.store.ListOptions(c.Request.Context(), p.ID)
		if err != nil {
			continue
		}
		out = append(out, results.BuildPollResponse(p, options, nil, true, true, ""))
	}
	return out
}

// mapStoreError turns a bare store.ErrNotFound into a wire-shaped 404.
func mapStoreError(err error, entity, id string) error {
	if err == store.ErrNotFound {
		return errors.NotFound(entity, id)
	}
	return err
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	n, err := parsePositiveInt(raw)
	if err != nil {
		_ = c.Error(errors.ValidationFailed("invalid id", name+" must be a positive integer"))
		return 0, false
	}
	return n, true
}
