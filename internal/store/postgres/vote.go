package postgres

import (
	"context"
	"fmt"

	"github.com/pollrelay/pollengine/types"
	"github.com/jackc/pgx/v5/pgtype"
)

const voteColumns = `id, poll_id, option_id, voter_name, voter_email, user_id, voter_key,
	response, comment, voter_edit_token, is_test_data, created_at, updated_at`

// CreateVote inserts a single vote row. The Vote Engine calls this once
// per option the voter selected; callers hold the per-(poll,voter)
// advisory lock for the whole bulk operation.
func (s *Store) CreateVote(ctx context.Context, vote *types.Vote) (*types.Vote, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO votes (
			poll_id, option_id, voter_name, voter_email, user_id, voter_key,
			response, comment, voter_edit_token, is_test_data, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING id, created_at, updated_at`,
		vote.PollID, vote.OptionID, vote.VoterName, vote.VoterEmail, vote.UserID, vote.VoterKey,
		vote.Response, vote.Comment, vote.VoterEditToken, vote.IsTestData,
	)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&vote.ID, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	vote.CreatedAt = timeFromPgRequired(createdAt)
	vote.UpdatedAt = timeFromPgRequired(updatedAt)
	return vote, nil
}

func (s *Store) UpdateVoteResponse(ctx context.Context, id string, response types.VoteResponse, comment string) (*types.Vote, error) {
	_, err := s.q.Exec(ctx, `UPDATE votes SET response = $1, comment = $2, updated_at = now() WHERE id = $3`, response, comment, id)
	if err != nil {
		return nil, fmt.Errorf("update vote response: %w", err)
	}
	row := s.q.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM votes WHERE id = $1", voteColumns), id)
	return scanVoteRow(row)
}

func (s *Store) DeleteVote(ctx context.Context, id string) error {
	if _, err := s.q.Exec(ctx, "DELETE FROM votes WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	return nil
}

// DeleteVotesByVoterKey removes every vote a voter cast on a poll,
// used both by vote withdrawal and as the "replace all slots" step of
// a bulk vote edit. Returns the number of rows removed.
func (s *Store) DeleteVotesByVoterKey(ctx context.Context, pollID, voterKey string) (int, error) {
	tag, err := s.q.Exec(ctx, "DELETE FROM votes WHERE poll_id = $1 AND voter_key = $2", pollID, voterKey)
	if err != nil {
		return 0, fmt.Errorf("delete votes by voter key: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListVotesByPoll(ctx context.Context, pollID string) ([]types.Vote, error) {
	return s.scanVotes(ctx, "WHERE poll_id = $1", pollID)
}

func (s *Store) ListVotesByPollAndEmail(ctx context.Context, pollID, email string) ([]types.Vote, error) {
	return s.scanVotes(ctx, "WHERE poll_id = $1 AND lower(voter_email) = lower($2)", pollID, email)
}

func (s *Store) ListVotesByEditToken(ctx context.Context, editToken string) ([]types.Vote, error) {
	return s.scanVotes(ctx, "WHERE voter_edit_token = $1", editToken)
}

func (s *Store) ListVotesByVoterKey(ctx context.Context, pollID, voterKey string) ([]types.Vote, error) {
	return s.scanVotes(ctx, "WHERE poll_id = $1 AND voter_key = $2", pollID, voterKey)
}

// CountYesVotesForOption is the capacity check read used by the Vote
// Engine's slot-capacity step (§4.5 Step 4) inside the advisory-locked
// transaction, so it observes any concurrent committed writes but not
// uncommitted ones from a sibling transaction — exactly the isolation
// the lock is meant to provide.
func (s *Store) CountYesVotesForOption(ctx context.Context, optionID int) (int, error) {
	var count int
	row := s.q.QueryRow(ctx, "SELECT count(*) FROM votes WHERE option_id = $1 AND response = $2", optionID, types.VoteYes)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count yes votes: %w", err)
	}
	return count, nil
}

func (s *Store) scanVotes(ctx context.Context, where string, args ...interface{}) ([]types.Vote, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT %s FROM votes %s ORDER BY created_at, id", voteColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []types.Vote
	for rows.Next() {
		v, err := scanVoteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, *v)
	}
	return votes, rows.Err()
}

func scanVoteRow(row rowScanner) (*types.Vote, error) {
	var v types.Vote
	var createdAt, updatedAt pgtype.Timestamptz

	if err := row.Scan(
		&v.ID, &v.PollID, &v.OptionID, &v.VoterName, &v.VoterEmail, &v.UserID, &v.VoterKey,
		&v.Response, &v.Comment, &v.VoterEditToken, &v.IsTestData, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	v.CreatedAt = timeFromPgRequired(createdAt)
	v.UpdatedAt = timeFromPgRequired(updatedAt)
	return &v, nil
}
