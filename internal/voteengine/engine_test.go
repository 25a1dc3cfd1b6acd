package voteengine

import (
	"context"
	"testing"

	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx embeds store.PollStore (nil) and store.Tx, overriding only
// what CastVotes touches inside a transaction.
type fakeTx struct {
	store.PollStore

	votesByEmail  []types.Vote
	votesByVoter  []types.Vote
	createdVotes  []types.Vote
	updateCalls   int
	yesCountByOpt map[int]int
}

func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }
func (f *fakeTx) AdvisoryXactLock(ctx context.Context, key int64) error { return nil }

func (f *fakeTx) ListVotesByPollAndEmail(ctx context.Context, pollID, email string) ([]types.Vote, error) {
	return f.votesByEmail, nil
}
func (f *fakeTx) ListVotesByVoterKey(ctx context.Context, pollID, voterKey string) ([]types.Vote, error) {
	return f.votesByVoter, nil
}
func (f *fakeTx) CountYesVotesForOption(ctx context.Context, optionID int) (int, error) {
	return f.yesCountByOpt[optionID], nil
}
func (f *fakeTx) UpdateVoteResponse(ctx context.Context, id string, response types.VoteResponse, comment string) (*types.Vote, error) {
	f.updateCalls++
	v := &types.Vote{ID: id, Response: response, Comment: comment}
	return v, nil
}
func (f *fakeTx) CreateVote(ctx context.Context, vote *types.Vote) (*types.Vote, error) {
	vote.ID = "vote-new"
	f.createdVotes = append(f.createdVotes, *vote)
	return vote, nil
}

// fakeEngineStore implements store.PollStore, wiring Transaction to
// run fn against a fakeTx built from this store's fixture state.
type fakeEngineStore struct {
	store.PollStore
	tx             *fakeTx
	votesAfterTxn  []types.Vote
}

func (f *fakeEngineStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(f.tx)
}
func (f *fakeEngineStore) ListVotesByPoll(ctx context.Context, pollID string) ([]types.Vote, error) {
	return f.votesAfterTxn, nil
}

type noopBroadcaster struct{ called bool }

func (n *noopBroadcaster) BroadcastSlotUpdate(ctx context.Context, pollID string, options []types.Option, allVotes []types.Vote) {
	n.called = true
}

type noopNotifier struct{ called bool }

func (n *noopNotifier) EnqueueVoterConfirmation(ctx context.Context, poll *types.Poll, voterEmail, voterEditToken string) {
	n.called = true
}

type emptyUserLookup struct{}

func (emptyUserLookup) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	return "", nil
}

func newTestPoll(kind types.PollKind, flags types.PollFlags) *types.Poll {
	return &types.Poll{ID: "poll-1", Kind: kind, IsActive: true, Flags: flags}
}

func TestCastVotes_NewSurveyVoteSucceeds(t *testing.T) {
	tx := &fakeTx{}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	broadcaster := &noopBroadcaster{}
	notifier := &noopNotifier{}
	engine := NewEngine(es, resolver, emptyUserLookup{}, broadcaster, notifier)

	poll := newTestPoll(types.PollKindSurvey, types.PollFlags{})
	options := []types.Option{{ID: 1, PollID: poll.ID}}
	req := types.CastVoteRequest{
		VoterName:  "Alice",
		VoterEmail: "alice@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:abc"}

	result, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")

	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeOK, result.Items[0].Status)
	assert.Len(t, tx.createdVotes, 1)
	assert.Equal(t, "alice@example.com", tx.createdVotes[0].VoterEmail)
}

func TestCastVotes_DuplicateVoteRejectedWhenEditingDisallowed(t *testing.T) {
	tx := &fakeTx{votesByEmail: []types.Vote{{ID: "vote-existing", PollID: "poll-1", OptionID: 1, VoterEmail: "alice@example.com"}}}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	poll := newTestPoll(types.PollKindSurvey, types.PollFlags{AllowVoteEdit: false})
	options := []types.Option{{ID: 1, PollID: poll.ID}}
	req := types.CastVoteRequest{
		VoterName:  "Alice",
		VoterEmail: "alice@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:abc"}

	_, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.Error(t, err)
}

func TestCastVotes_CapacityFullReturnsSlotFullOutcome(t *testing.T) {
	tx := &fakeTx{yesCountByOpt: map[int]int{1: 2}}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	cap := 2
	poll := newTestPoll(types.PollKindOrganization, types.PollFlags{})
	options := []types.Option{{ID: 1, PollID: poll.ID, MaxCapacity: &cap}}
	req := types.CastVoteRequest{
		VoterName:  "Bob",
		VoterEmail: "bob@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:def"}

	result, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeSlotFull, result.Items[0].Status)
}

func TestCastVotes_CapacityFullOnEditOfExistingRowReturnsSlotFullOutcome(t *testing.T) {
	// Voter previously voted "no" on a full option; an edit that flips
	// the response to "yes" must be capacity-checked the same as a
	// brand-new vote, not take the unconditional UpdateVoteResponse
	// shortcut.
	existing := types.Vote{ID: "vote-existing", PollID: "poll-1", OptionID: 1, VoterEmail: "eve@example.com", Response: types.VoteNo}
	tx := &fakeTx{
		votesByEmail:  []types.Vote{existing},
		yesCountByOpt: map[int]int{1: 2},
	}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	cap := 2
	poll := newTestPoll(types.PollKindOrganization, types.PollFlags{AllowVoteEdit: true})
	options := []types.Option{{ID: 1, PollID: poll.ID, MaxCapacity: &cap}}
	req := types.CastVoteRequest{
		VoterName:  "Eve",
		VoterEmail: "eve@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:eve"}

	result, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeSlotFull, result.Items[0].Status)
	assert.Equal(t, 0, tx.updateCalls, "a rejected slot-full edit must not reach UpdateVoteResponse")
}

func TestCastVotes_EditKeepingExistingYesDoesNotReCheckCapacity(t *testing.T) {
	// Re-submitting the same "yes" (e.g. updating a comment) must not
	// be treated as claiming a new slot against an already-full option.
	existing := types.Vote{ID: "vote-existing", PollID: "poll-1", OptionID: 1, VoterEmail: "frank@example.com", Response: types.VoteYes}
	tx := &fakeTx{
		votesByEmail:  []types.Vote{existing},
		yesCountByOpt: map[int]int{1: 2},
	}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	cap := 2
	poll := newTestPoll(types.PollKindOrganization, types.PollFlags{AllowVoteEdit: true})
	options := []types.Option{{ID: 1, PollID: poll.ID, MaxCapacity: &cap}}
	req := types.CastVoteRequest{
		VoterName:  "Frank",
		VoterEmail: "frank@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes, Comment: "still coming"}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:frank"}

	result, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeOK, result.Items[0].Status)
	assert.Equal(t, 1, tx.updateCalls)
}

func TestCastVotes_MaybeRejectedWhenNotAllowed(t *testing.T) {
	tx := &fakeTx{}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	poll := newTestPoll(types.PollKindSurvey, types.PollFlags{AllowMaybe: false})
	options := []types.Option{{ID: 1, PollID: poll.ID}}
	req := types.CastVoteRequest{
		VoterName:  "Carl",
		VoterEmail: "carl@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteMaybe}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:ghi"}

	_, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.Error(t, err)
}

func TestCastVotes_ClosedPollRejected(t *testing.T) {
	tx := &fakeTx{}
	es := &fakeEngineStore{tx: tx}
	resolver := identity.NewResolver(nil, false)
	engine := NewEngine(es, resolver, emptyUserLookup{}, &noopBroadcaster{}, &noopNotifier{})

	poll := newTestPoll(types.PollKindSurvey, types.PollFlags{})
	poll.IsActive = false
	options := []types.Option{{ID: 1, PollID: poll.ID}}
	req := types.CastVoteRequest{
		VoterName:  "Dana",
		VoterEmail: "dana@example.com",
		Votes:      []types.VoteItemInput{{OptionID: 1, Response: types.VoteYes}},
	}
	voterKey := identity.VoterKey{Source: identity.SourceDevice, Value: "device:jkl"}

	_, err := engine.CastVotes(context.Background(), poll, options, req, voterKey, "")
	require.Error(t, err)
}
