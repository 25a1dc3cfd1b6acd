package voteengine

import (
	"context"
	"strings"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/types"
)

// Withdraw implements §4.5's withdrawal authorization chain: resolve
// which votes belong to the requester by authenticated email, then
// edit token, then supplied email against a known voter_key, in that
// order, removing every vote that matches.
func (e *Engine) Withdraw(ctx context.Context, poll *types.Poll, req types.WithdrawVoteRequest, authenticatedUserEmail string, voterKey identity.VoterKey) error {
	if !poll.Flags.AllowVoteWithdrawal {
		return errors.NewConflict(errors.CodeWithdrawalNotAllowed, "This poll does not allow withdrawing votes", nil)
	}

	votes, err := e.votesToWithdraw(ctx, poll.ID, req, authenticatedUserEmail, voterKey)
	if err != nil {
		return err
	}
	if len(votes) == 0 {
		return errors.NewConflict(errors.CodeNoVotesFound, "No votes found for this voter", nil)
	}

	key := votes[0].VoterKey
	if _, err := e.store.DeleteVotesByVoterKey(ctx, poll.ID, key); err != nil {
		return err
	}

	if poll.Kind == types.PollKindOrganization && e.broadcaster != nil {
		options, optErr := e.store.ListOptions(ctx, poll.ID)
		remaining, votesErr := e.store.ListVotesByPoll(ctx, poll.ID)
		if optErr == nil && votesErr == nil {
			e.broadcaster.BroadcastSlotUpdate(ctx, poll.ID, options, remaining)
		}
	}
	return nil
}

func (e *Engine) votesToWithdraw(ctx context.Context, pollID string, req types.WithdrawVoteRequest, authenticatedUserEmail string, voterKey identity.VoterKey) ([]types.Vote, error) {
	if authenticatedUserEmail != "" {
		votes, err := e.store.ListVotesByPollAndEmail(ctx, pollID, authenticatedUserEmail)
		if err != nil {
			return nil, err
		}
		if len(votes) > 0 {
			return votes, nil
		}
	}
	if req.VoterEditToken != "" {
		votes, err := e.store.ListVotesByEditToken(ctx, req.VoterEditToken)
		if err != nil {
			return nil, err
		}
		filtered := filterByPoll(votes, pollID)
		if len(filtered) > 0 {
			return filtered, nil
		}
	}
	if req.VoterEmail != "" {
		votes, err := e.store.ListVotesByPollAndEmail(ctx, pollID, strings.ToLower(req.VoterEmail))
		if err != nil {
			return nil, err
		}
		if len(votes) > 0 {
			return votes, nil
		}
	}
	votes, err := e.store.ListVotesByVoterKey(ctx, pollID, voterKey.String())
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func filterByPoll(votes []types.Vote, pollID string) []types.Vote {
	out := votes[:0]
	for _, v := range votes {
		if v.PollID == pollID {
			out = append(out, v)
		}
	}
	return out
}
