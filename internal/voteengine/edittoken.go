package voteengine

import (
	"context"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
)

// VotesByEditToken resolves the voter's own votes for GET/PUT
// /votes/edit/:edit_token, grounded in §4.5's "edit by token" flow.
func (e *Engine) VotesByEditToken(ctx context.Context, editToken string) ([]types.Vote, error) {
	votes, err := e.store.ListVotesByEditToken(ctx, editToken)
	if err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, errors.NotFound("edit token", editToken)
	}
	return votes, nil
}

// ApplyEditByToken re-applies §4.5 Step 4 without re-checking
// ALREADY_VOTED, per the edit-by-token contract: possession of the
// token is itself sufficient authorization to change responses.
func (e *Engine) ApplyEditByToken(ctx context.Context, poll *types.Poll, options []types.Option, editToken string, items []types.VoteItemInput) (*BulkResult, error) {
	existingVotes, err := e.VotesByEditToken(ctx, editToken)
	if err != nil {
		return nil, err
	}
	if len(existingVotes) == 0 || existingVotes[0].PollID != poll.ID {
		return nil, errors.NotFound("edit token", editToken)
	}
	voterEmail := existingVotes[0].VoterEmail

	lockKey := stableHash(lockKeyInput(poll.ID, voterEmail, voterKeyFromVote(existingVotes[0])))

	var result BulkResult
	err = e.store.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.AdvisoryXactLock(ctx, lockKey); err != nil {
			return err
		}

		current, err := tx.ListVotesByEditToken(ctx, editToken)
		if err != nil {
			return err
		}
		byOption := make(map[int]types.Vote, len(current))
		for _, v := range current {
			byOption[v.OptionID] = v
		}
		hasYesAlready := voterHasYes(current)

		req := types.CastVoteRequest{VoterName: existingVotes[0].VoterName, VoterEmail: voterEmail}
		outcomes := make([]ItemOutcome, 0, len(items))
		for _, item := range items {
			outcome, err := e.applyItem(ctx, tx, poll, options, item, byOption, voterKeyFromVote(existingVotes[0]), req, editToken, &hasYesAlready)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}
		result = BulkResult{Items: outcomes, VoterEditToken: editToken}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.postCommit(ctx, poll, options, voterEmail, editToken)
	return &result, nil
}

func voterKeyFromVote(v types.Vote) identity.VoterKey {
	return identity.FromStoredValue(v.VoterKey)
}
