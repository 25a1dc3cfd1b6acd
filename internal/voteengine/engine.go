package voteengine

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/internal/token"
	"github.com/pollrelay/pollengine/types"
)

// Broadcaster is the C7 dependency the engine uses for the §4.5 Step 5
// post-commit slot_update fan-out. Kept as a narrow interface so the
// engine has no direct dependency on the live-dispatcher transport.
type Broadcaster interface {
	BroadcastSlotUpdate(ctx context.Context, pollID string, options []types.Option, allVotes []types.Vote)
}

// Notifier is the engine's outbound-email dependency for the voter
// confirmation sent on every successful vote.
type Notifier interface {
	EnqueueVoterConfirmation(ctx context.Context, poll *types.Poll, voterEmail string, voterEditToken string)
}

const confirmationCooldown = 30 * time.Second

// Engine is the Vote Engine (C5): the sole path by which votes are
// created, edited, or withdrawn.
type Engine struct {
	store       store.PollStore
	resolver    *identity.Resolver
	lookup      identity.UserLookup
	broadcaster Broadcaster
	notifier    Notifier

	confirmMu   sync.Mutex
	lastConfirm map[string]time.Time
}

func NewEngine(pollStore store.PollStore, resolver *identity.Resolver, lookup identity.UserLookup, broadcaster Broadcaster, notifier Notifier) *Engine {
	return &Engine{
		store:       pollStore,
		resolver:    resolver,
		lookup:      lookup,
		broadcaster: broadcaster,
		notifier:    notifier,
		lastConfirm: make(map[string]time.Time),
	}
}

// CastVotes implements §4.5 Steps 1-5 for a bulk vote submission.
func (e *Engine) CastVotes(ctx context.Context, poll *types.Poll, options []types.Option, req types.CastVoteRequest, voterKey identity.VoterKey, authenticatedUserID string) (*BulkResult, error) {
	if err := validatePreconditions(poll, options, req); err != nil {
		return nil, err
	}
	if err := identity.CheckEmailOwnership(ctx, e.lookup, req.VoterEmail, authenticatedUserID); err != nil {
		return nil, err
	}

	lockKey := stableHash(lockKeyInput(poll.ID, req.VoterEmail, voterKey))

	var result BulkResult
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.AdvisoryXactLock(ctx, lockKey); err != nil {
			return err
		}

		existing, err := tx.ListVotesByPollAndEmail(ctx, poll.ID, req.VoterEmail)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			existing, err = tx.ListVotesByVoterKey(ctx, poll.ID, voterKey.String())
			if err != nil {
				return err
			}
		}

		if len(existing) > 0 && !poll.Flags.AllowVoteEdit {
			if poll.Kind == types.PollKindSurvey {
				return errors.NewConflict(errors.CodeDuplicateEmailVote, "You have already voted in this poll", nil)
			}
			return errors.NewConflict(errors.CodeAlreadyVoted, "You have already voted in this poll", nil)
		}

		editToken := firstEditToken(existing)
		if editToken == "" {
			fresh, err := token.NewOpaqueToken()
			if err != nil {
				return err
			}
			editToken = fresh
		}

		byOption := make(map[int]types.Vote, len(existing))
		for _, v := range existing {
			byOption[v.OptionID] = v
		}

		hasYesAlready := voterHasYes(existing)

		items := make([]ItemOutcome, 0, len(req.Votes))
		for _, item := range req.Votes {
			outcome, err := e.applyItem(ctx, tx, poll, options, item, byOption, voterKey, req, editToken, &hasYesAlready)
			if err != nil {
				return err
			}
			items = append(items, outcome)
		}

		result = BulkResult{Items: items}
		if poll.Flags.AllowVoteEdit {
			result.VoterEditToken = editToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.postCommit(ctx, poll, options, req.VoterEmail, result.VoterEditToken)
	return &result, nil
}

func (e *Engine) applyItem(
	ctx context.Context,
	tx store.Tx,
	poll *types.Poll,
	options []types.Option,
	item types.VoteItemInput,
	byOption map[int]types.Vote,
	voterKey identity.VoterKey,
	req types.CastVoteRequest,
	editToken string,
	hasYesAlready *bool,
) (ItemOutcome, error) {
	opt := findOption(options, item.OptionID)
	if opt == nil {
		return ItemOutcome{}, errors.ValidationFailed("Invalid option", "option does not belong to this poll")
	}

	existing, hasExisting := byOption[item.OptionID]
	wasYes := hasExisting && existing.Response == types.VoteYes

	// Capacity and single-slot checks apply whenever this item would
	// newly occupy a yes slot — whether that's a fresh vote or an
	// edit of an existing no/maybe row into yes. A row that was
	// already yes and stays yes isn't claiming a new slot.
	if item.Response == types.VoteYes && !wasYes {
		if opt.MaxCapacity != nil {
			count, err := tx.CountYesVotesForOption(ctx, opt.ID)
			if err != nil {
				return ItemOutcome{}, err
			}
			if count >= *opt.MaxCapacity {
				return ItemOutcome{OptionID: item.OptionID, Status: OutcomeSlotFull}, nil
			}
		}
		if !poll.Flags.AllowMultipleSlots && *hasYesAlready {
			return ItemOutcome{OptionID: item.OptionID, Status: OutcomeAlreadySignedUp}, nil
		}
	}

	if hasExisting {
		updated, err := tx.UpdateVoteResponse(ctx, existing.ID, item.Response, item.Comment)
		if err != nil {
			return ItemOutcome{}, err
		}
		if item.Response == types.VoteYes {
			*hasYesAlready = true
		}
		return ItemOutcome{OptionID: item.OptionID, Status: OutcomeOK, Vote: updated}, nil
	}

	vote := &types.Vote{
		PollID:         poll.ID,
		OptionID:       item.OptionID,
		VoterName:      req.VoterName,
		VoterEmail:     strings.ToLower(req.VoterEmail),
		VoterKey:       voterKey.String(),
		Response:       item.Response,
		Comment:        item.Comment,
		VoterEditToken: editToken,
	}
	if userID := identity.ParseUserIDFromKey(voterKey); userID != "" {
		vote.UserID = &userID
	}

	created, err := tx.CreateVote(ctx, vote)
	if err != nil {
		return ItemOutcome{}, err
	}
	if item.Response == types.VoteYes {
		*hasYesAlready = true
	}
	return ItemOutcome{OptionID: item.OptionID, Status: OutcomeOK, Vote: created}, nil
}

// postCommit implements §4.5 Step 5, run outside the lock/transaction.
func (e *Engine) postCommit(ctx context.Context, poll *types.Poll, options []types.Option, voterEmail, editToken string) {
	if poll.Kind == types.PollKindOrganization && e.broadcaster != nil {
		votes, err := e.store.ListVotesByPoll(ctx, poll.ID)
		if err == nil {
			e.broadcaster.BroadcastSlotUpdate(ctx, poll.ID, options, votes)
		}
	}

	if e.notifier != nil && voterEmail != "" && e.shouldSendConfirmation(poll.ID, voterEmail) {
		e.notifier.EnqueueVoterConfirmation(ctx, poll, voterEmail, editToken)
	}
}

func (e *Engine) shouldSendConfirmation(pollID, voterEmail string) bool {
	key := pollID + "/" + strings.ToLower(voterEmail)
	e.confirmMu.Lock()
	defer e.confirmMu.Unlock()
	now := time.Now()
	if last, ok := e.lastConfirm[key]; ok && now.Sub(last) < confirmationCooldown {
		return false
	}
	e.lastConfirm[key] = now
	return true
}

func validatePreconditions(poll *types.Poll, options []types.Option, req types.CastVoteRequest) error {
	if poll.IsClosed() {
		if poll.IsExpired() {
			return errors.NewConflict(errors.CodePollExpired, "This poll has expired", nil)
		}
		return errors.NewConflict(errors.CodePollInactive, "This poll is no longer accepting votes", nil)
	}
	for _, item := range req.Votes {
		if findOption(options, item.OptionID) == nil {
			return errors.ValidationFailed("Invalid option", "one or more options do not belong to this poll")
		}
		if item.Response == types.VoteMaybe && !poll.Flags.AllowMaybe {
			return errors.ValidationFailed("Maybe responses are not allowed", "this poll does not permit maybe responses")
		}
	}
	return nil
}

func findOption(options []types.Option, id int) *types.Option {
	for i := range options {
		if options[i].ID == id {
			return &options[i]
		}
	}
	return nil
}

func firstEditToken(votes []types.Vote) string {
	if len(votes) == 0 {
		return ""
	}
	return votes[0].VoterEditToken
}

func voterHasYes(votes []types.Vote) bool {
	for _, v := range votes {
		if v.Response == types.VoteYes {
			return true
		}
	}
	return false
}

func lockKeyInput(pollID, voterEmail string, voterKey identity.VoterKey) string {
	if voterEmail != "" {
		return pollID + "/" + strings.ToLower(voterEmail)
	}
	return pollID + "/" + voterKey.String()
}

// stableHash implements spec's stable_hash: a deterministic 64-bit
// digest usable as a PostgreSQL advisory lock key.
func stableHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
