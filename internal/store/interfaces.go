package store

import (
	"context"

	"github.com/pollrelay/pollengine/types"
)

// Tx is a transaction handle returned by PollStore.Transaction. Its
// AdvisoryXactLock method is the concurrency primitive the Vote
// Engine (§4.5 Step 2) uses to serialise one voter's mutations on one
// poll; the lock is automatically released when the transaction ends.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// AdvisoryXactLock blocks until it holds a transaction-scoped
	// advisory lock on key, released on commit or rollback.
	AdvisoryXactLock(ctx context.Context, key int64) error

	PollStore
}

// PollStore persists the §3 data model: polls, options, votes,
// notification logs, and admin settings. Vote primitives are used by
// the Vote Engine only — API handlers never call them directly.
type PollStore interface {
	// Polls
	CreatePoll(ctx context.Context, poll *types.Poll, options []types.Option) (*types.Poll, []types.Option, error)
	GetPollByID(ctx context.Context, id string) (*types.Poll, error)
	GetPollByPublicToken(ctx context.Context, token string) (*types.Poll, error)
	GetPollByAdminToken(ctx context.Context, token string) (*types.Poll, error)
	UpdatePoll(ctx context.Context, id string, patch PollPatch) (*types.Poll, error)
	DeletePoll(ctx context.Context, id string) error
	ListPollsByCreatorUserID(ctx context.Context, userID string) ([]*types.Poll, error)
	ListPollsByCreatorEmail(ctx context.Context, email string) ([]*types.Poll, error)
	ListExpiringPollsNeedingReminder(ctx context.Context, now, horizon int64) ([]*types.Poll, error)
	MarkExpiryReminderSent(ctx context.Context, pollID string) error

	// Options
	ListOptions(ctx context.Context, pollID string) ([]types.Option, error)
	AddOption(ctx context.Context, opt *types.Option) (*types.Option, error)
	UpdateOption(ctx context.Context, id int, patch OptionPatch) (*types.Option, error)
	DeleteOption(ctx context.Context, id int) error

	// Vote primitives (Vote Engine only)
	CreateVote(ctx context.Context, vote *types.Vote) (*types.Vote, error)
	UpdateVoteResponse(ctx context.Context, id string, response types.VoteResponse, comment string) (*types.Vote, error)
	DeleteVote(ctx context.Context, id string) error
	DeleteVotesByVoterKey(ctx context.Context, pollID, voterKey string) (int, error)
	ListVotesByPoll(ctx context.Context, pollID string) ([]types.Vote, error)
	ListVotesByPollAndEmail(ctx context.Context, pollID, email string) ([]types.Vote, error)
	ListVotesByEditToken(ctx context.Context, editToken string) ([]types.Vote, error)
	ListVotesByVoterKey(ctx context.Context, pollID, voterKey string) ([]types.Vote, error)
	CountYesVotesForOption(ctx context.Context, optionID int) (int, error)

	// Notification log (§4.8 reminder-cap enforcement)
	CreateNotificationLog(ctx context.Context, log *types.NotificationLog) error
	CountNotifications(ctx context.Context, pollID string, notifType types.NotificationType, sinceUnix int64) (int, error)
	LastNotificationAt(ctx context.Context, pollID string, notifType types.NotificationType) (int64, bool, error)

	// Token entities, purged periodically by the scheduler (C8).
	PurgeExpiredPasswordResetTokens(ctx context.Context, nowUnix int64) (int, error)
	PurgeExpiredEmailChangeTokens(ctx context.Context, nowUnix int64) (int, error)

	// Admin settings: runtime-overridable rate-limit bucket config etc.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// Users: a minimal read-side aggregate (§4.3 ADDED note). Account
	// creation/authentication belongs to the external auth providers
	// named in §1; this store only owns lookup, for C4's
	// email-ownership rule and the my-polls/shared-polls queries.
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUserByID(ctx context.Context, id string) (*types.User, error)

	// Transaction wraps fn in a serialisable transaction exposing
	// AdvisoryXactLock. Implementations must commit on nil return and
	// roll back otherwise.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// PollPatch carries the optional fields of an admin poll update
// (§6 PATCH /polls/admin/:token). Nil fields are left unchanged.
type PollPatch struct {
	Title                *string
	Description          *string
	IsActive             *bool
	ExpiresAt            *int64
	ClearExpiresAt       bool
	EnableExpiryReminder *bool
	ExpiryReminderHours  *int
	Flags                *types.PollFlags
	FinalOptionID        *int
	ClearFinalOptionID   bool
}

// OptionPatch carries the optional fields of an option update.
type OptionPatch struct {
	Text        *string
	ImageURL    *string
	AltText     *string
	StartTime   *int64
	EndTime     *int64
	MaxCapacity *int
	Order       *int
}
