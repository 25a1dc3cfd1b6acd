package handlers

import (
	"context"
	"net/http"

	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/voteengine"
	"github.com/pollrelay/pollengine/types"
)

// VoterResolver is the subset of identity.Resolver the handlers need,
// narrowed to an interface so tests can fake it.
type VoterResolver interface {
	Resolve(info identity.RequestInfo) (identity.VoterKey, *http.Cookie)
}

var _ VoterResolver = (*identity.Resolver)(nil)

// VoteEngine is the subset of voteengine.Engine the vote handler
// drives; every vote mutation in the API flows through it.
type VoteEngine interface {
	CastVotes(ctx context.Context, poll *types.Poll, options []types.Option, req types.CastVoteRequest, voterKey identity.VoterKey, authenticatedUserID string) (*voteengine.BulkResult, error)
	Withdraw(ctx context.Context, poll *types.Poll, req types.WithdrawVoteRequest, authenticatedUserEmail string, voterKey identity.VoterKey) error
	VotesByEditToken(ctx context.Context, editToken string) ([]types.Vote, error)
	ApplyEditByToken(ctx context.Context, poll *types.Poll, options []types.Option, editToken string, items []types.VoteItemInput) (*voteengine.BulkResult, error)
}

var _ VoteEngine = (*voteengine.Engine)(nil)

// Notifier is the subset of the notification facade the manual-remind
// handler drives; shared with scheduler.Notifier's expiry-reminder
// send path since a manual remind and a scheduled one notify the same
// audience the same way.
type Notifier interface {
	EnqueueExpiryReminder(ctx context.Context, poll *types.Poll)
}
