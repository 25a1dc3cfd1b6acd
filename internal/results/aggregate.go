// Package results implements the Result Aggregator (C6): a pure
// function over a poll's already-loaded options and votes, grounded on
// the teacher's buildPollResponse read-model-over-fetched-rows style
// in models/poll.go.
package results

import (
	"sort"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/types"
)

// Dedup collapses votes to one per (voter_identity, option_id), tying
// identity to VoterKey and breaking ties by max(updated_at) then
// max(id), per §4.6.
func Dedup(votes []types.Vote) []types.Vote {
	type key struct {
		voter string
		opt   int
	}
	best := make(map[key]types.Vote, len(votes))
	for _, v := range votes {
		k := key{voter: v.VoterKey, opt: v.OptionID}
		cur, ok := best[k]
		if !ok || isNewer(v, cur) {
			best[k] = v
		}
	}
	out := make([]types.Vote, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func isNewer(a, b types.Vote) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// Stats computes the §4.6 per-option tallies from an already-deduped
// vote set.
func Stats(options []types.Option, votes []types.Vote) map[int]types.OptionStats {
	stats := make(map[int]types.OptionStats, len(options))
	for _, opt := range options {
		stats[opt.ID] = types.OptionStats{Capacity: opt.MaxCapacity}
	}
	for _, v := range votes {
		s := stats[v.OptionID]
		switch v.Response {
		case types.VoteYes:
			s.YesCount++
		case types.VoteMaybe:
			s.MaybeCount++
		case types.VoteNo:
			s.NoCount++
		}
		stats[v.OptionID] = s
	}
	for id, s := range stats {
		s.Score = 2*s.YesCount + 1*s.MaybeCount
		s.Current = s.YesCount
		stats[id] = s
	}
	return stats
}

// ParticipantCount counts distinct voter identities in a deduped vote
// set.
func ParticipantCount(votes []types.Vote) int {
	seen := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		seen[v.VoterKey] = struct{}{}
	}
	return len(seen)
}

// CanViewResults implements §4.6's results-visibility rule.
func CanViewResults(poll *types.Poll, isAdmin bool, requesterUserID string) bool {
	if poll.Flags.ResultsPublic {
		return true
	}
	if isAdmin {
		return true
	}
	return poll.CreatorUserID != nil && requesterUserID != "" && *poll.CreatorUserID == requesterUserID
}

// BuildPollResponse projects a poll and its votes into the wire
// PollResponse shape. When canSeeResults is false, per-option tallies
// are zeroed (results-private suppression) while HasVoted — whether
// requesterVoterKey appears on that option — is left intact so a voter
// can still see their own prior selections.
func BuildPollResponse(poll *types.Poll, options []types.Option, votes []types.Vote, includeAdminToken bool, canSeeResults bool, requesterVoterKey string) types.PollResponse {
	deduped := Dedup(votes)
	stats := Stats(options, deduped)

	votedOptions := make(map[int]bool)
	if requesterVoterKey != "" {
		for _, v := range deduped {
			if v.VoterKey == requesterVoterKey {
				votedOptions[v.OptionID] = true
			}
		}
	}

	results := make([]types.OptionResult, 0, len(options))
	for _, opt := range options {
		s := stats[opt.ID]
		if !canSeeResults {
			s.YesCount, s.MaybeCount, s.NoCount, s.Score = 0, 0, 0, 0
		}
		results = append(results, types.OptionResult{
			Option:   opt,
			Counts:   s,
			HasVoted: votedOptions[opt.ID],
		})
	}

	resp := types.PollResponse{
		ID:             poll.ID,
		Kind:           poll.Kind,
		Title:          poll.Title,
		Description:    poll.Description,
		PublicToken:    poll.PublicToken,
		IsActive:       poll.IsActive,
		IsClosed:       poll.IsClosed(),
		ExpiresAt:      poll.ExpiresAt,
		Flags:          poll.Flags,
		FinalOptionID:  poll.FinalOptionID,
		ExpiryReminder: poll.ExpiryReminder,
		Options:        results,
		CreatedAt:      poll.CreatedAt,
		UpdatedAt:      poll.UpdatedAt,
	}
	if includeAdminToken {
		resp.AdminToken = poll.AdminToken
	}
	return resp
}

// Aggregate builds the full §4.6 results payload for GET
// /polls/:token/results. Callers must check CanViewResults first;
// Aggregate itself does not re-check visibility.
func Aggregate(poll *types.Poll, options []types.Option, votes []types.Vote) types.ResultsResponse {
	deduped := Dedup(votes)
	stats := Stats(options, deduped)

	optionResults := make([]types.OptionResult, 0, len(options))
	for _, opt := range options {
		optionResults = append(optionResults, types.OptionResult{Option: opt, Counts: stats[opt.ID]})
	}

	participantCount := ParticipantCount(deduped)
	responseRate := 0.0
	if participantCount > 0 {
		responseRate = 100.0
	}

	return types.ResultsResponse{
		Options:          optionResults,
		Votes:            deduped,
		ParticipantCount: participantCount,
		ResponseRate:     responseRate,
		Matrix:           BuildMatrix(poll, options, deduped),
	}
}

// VisibilityError builds the wire-level 403 for a blocked results read.
func VisibilityError() error {
	return errors.ResultsPrivate()
}
