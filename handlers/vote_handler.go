package handlers

import (
	"net/http"

	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/results"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/gin-gonic/gin"
)

// VoteHandler serves the voting routes of §6: cast, withdraw, edit by
// token, and the requester's own vote status.
type VoteHandler struct {
	store    store.PollStore
	resolver VoterResolver
	engine   VoteEngine
}

func NewVoteHandler(pollStore store.PollStore, resolver VoterResolver, engine VoteEngine) *VoteHandler {
	return &VoteHandler{store: pollStore, resolver: resolver, engine: engine}
}

func (h *VoteHandler) resolveVoter(c *gin.Context) identity.VoterKey {
	authenticatedUserID, deviceCookie, userAgent := requestInfoFromContext(c)
	voterKey, cookie := h.resolver.Resolve(identity.RequestInfo{
		AuthenticatedUserID: authenticatedUserID,
		DeviceCookie:        deviceCookie,
		UserAgent:           userAgent,
	})
	applyDeviceCookie(c, cookie)
	return voterKey
}

// CastVoteHandler handles POST /polls/public/:token/vote and its alias
// .../vote-bulk.
func (h *VoteHandler) CastVoteHandler(c *gin.Context) {
	publicToken := c.Param("token")
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), publicToken)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", publicToken))
		return
	}

	var req types.CastVoteRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	options, err := h.store.ListOptions(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	voterKey := h.resolveVoter(c)
	authenticatedUserID := getUserIDFromContext(c)

	result, err := h.engine.CastVotes(c.Request.Context(), poll, options, req, voterKey, authenticatedUserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, types.CastVoteResponse{
		Success:        len(result.Succeeded()) > 0,
		Votes:          result.Succeeded(),
		VoterEditToken: result.VoterEditToken,
	})
}

// WithdrawVoteHandler handles DELETE /polls/public/:token/vote.
func (h *VoteHandler) WithdrawVoteHandler(c *gin.Context) {
	publicToken := c.Param("token")
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), publicToken)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", publicToken))
		return
	}

	var req types.WithdrawVoteRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	voterKey := h.resolveVoter(c)
	authenticatedUserEmail := getUserEmailFromContext(c)

	if err := h.engine.Withdraw(c.Request.Context(), poll, req, authenticatedUserEmail, voterKey); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "votes withdrawn"})
}

// GetEditTokenHandler handles GET /votes/edit/:editToken.
func (h *VoteHandler) GetEditTokenHandler(c *gin.Context) {
	editToken := c.Param("editToken")
	votes, err := h.engine.VotesByEditToken(c.Request.Context(), editToken)
	if err != nil {
		_ = c.Error(err)
		return
	}

	poll, err := h.store.GetPollByID(c.Request.Context(), votes[0].PollID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	options, err := h.store.ListOptions(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	allVotes, err := h.store.ListVotesByPoll(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	canSeeResults := results.CanViewResults(poll, false, getUserIDFromContext(c))
	pollResp := results.BuildPollResponse(poll, options, allVotes, false, canSeeResults, votes[0].VoterKey)
	c.JSON(http.StatusOK, types.EditTokenResponse{Poll: pollResp, Votes: votes})
}

// PutEditTokenHandler handles PUT /votes/edit/:editToken.
func (h *VoteHandler) PutEditTokenHandler(c *gin.Context) {
	editToken := c.Param("editToken")
	votes, err := h.engine.VotesByEditToken(c.Request.Context(), editToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	poll, err := h.store.GetPollByID(c.Request.Context(), votes[0].PollID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	options, err := h.store.ListOptions(c.Request.Context(), poll.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var body struct {
		Votes []types.VoteItemInput `json:"votes" binding:"required,min=1,dive"`
	}
	if !bindJSONOrError(c, &body) {
		return
	}

	result, err := h.engine.ApplyEditByToken(c.Request.Context(), poll, options, editToken, body.Votes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.CastVoteResponse{
		Success:        true,
		Votes:          result.Succeeded(),
		VoterEditToken: result.VoterEditToken,
	})
}

// MyVotesHandler handles GET /polls/public/:token/my-votes.
func (h *VoteHandler) MyVotesHandler(c *gin.Context) {
	publicToken := c.Param("token")
	poll, err := h.store.GetPollByPublicToken(c.Request.Context(), publicToken)
	if err != nil {
		_ = c.Error(mapStoreError(err, "poll", publicToken))
		return
	}

	voterKey := h.resolveVoter(c)
	votes, err := h.store.ListVotesByVoterKey(c.Request.Context(), poll.ID, voterKey.String())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if len(votes) == 0 {
		c.JSON(http.StatusOK, types.MyVotesResponse{HasVoted: false})
		return
	}
	c.JSON(http.StatusOK, types.MyVotesResponse{HasVoted: true, Votes: votes})
}
