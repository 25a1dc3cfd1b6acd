// Package voteengine implements the Vote Engine (C5): the single path
// through which every vote mutation flows, so the capacity, identity,
// and edit rules of §4.5 are enforced in exactly one place.
package voteengine

import "github.com/pollrelay/pollengine/types"

// OutcomeStatus is the tagged result of applying one vote item,
// replacing the "throw on duplicate" anti-pattern the spec's Design
// Notes calls out. Handlers map each status to its wire error code.
type OutcomeStatus string

const (
	OutcomeOK                 OutcomeStatus = "ok"
	OutcomeAlreadyVoted       OutcomeStatus = "already_voted"
	OutcomeSlotFull           OutcomeStatus = "slot_full"
	OutcomeAlreadySignedUp    OutcomeStatus = "already_signed_up"
	OutcomeDuplicateEmailVote OutcomeStatus = "duplicate_email_vote"
)

// ItemOutcome is the per-vote-item result of a bulk vote.
type ItemOutcome struct {
	OptionID int
	Status   OutcomeStatus
	Vote     *types.Vote
}

// BulkResult is the Vote Engine's return value for CastVotes.
type BulkResult struct {
	Items          []ItemOutcome
	VoterEditToken string
}

// Succeeded returns only the items that were actually recorded.
func (r BulkResult) Succeeded() []types.Vote {
	var out []types.Vote
	for _, item := range r.Items {
		if item.Status == OutcomeOK && item.Vote != nil {
			out = append(out, *item.Vote)
		}
	}
	return out
}

// AnyRejected reports whether at least one item failed, used by
// handlers deciding between 200 (partial success) and an all-items-
// rejected error response.
func (r BulkResult) AnyRejected() bool {
	for _, item := range r.Items {
		if item.Status != OutcomeOK {
			return true
		}
	}
	return false
}
