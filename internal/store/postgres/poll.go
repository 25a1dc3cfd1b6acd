package postgres

import (
	"context"
	"errors"
	"fmt"

	internalstore "github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/internal/token"
	"github.com/pollrelay/pollengine/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreatePoll inserts a poll and its options in one transaction.
// Both tokens are minted here so creation is atomic with respect to
// token uniqueness (§4.3).
func (s *Store) CreatePoll(ctx context.Context, poll *types.Poll, options []types.Option) (*types.Poll, []types.Option, error) {
	adminToken, err := token.NewOpaqueToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate admin token: %w", err)
	}
	publicToken, err := token.NewOpaqueToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate public token: %w", err)
	}
	poll.AdminToken = adminToken
	poll.PublicToken = publicToken

	var created *types.Poll
	var createdOptions []types.Option

	err = s.Transaction(ctx, func(tx internalstore.Tx) error {
		row := tx.(*txHandle).q.QueryRow(ctx, `
			INSERT INTO polls (
				kind, title, description, creator_user_id, creator_email,
				admin_token, public_token, is_active, expires_at,
				allow_vote_edit, allow_vote_withdrawal, allow_multiple_slots, allow_maybe, results_public,
				expiry_reminder_enabled, expiry_reminder_hours, expiry_reminder_sent,
				is_test_data, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,false,$17,now(),now())
			RETURNING id, created_at, updated_at`,
			poll.Kind, poll.Title, poll.Description, poll.CreatorUserID, poll.CreatorEmail,
			poll.AdminToken, poll.PublicToken, poll.IsActive, pgTimestamptz(poll.ExpiresAt),
			poll.Flags.AllowVoteEdit, poll.Flags.AllowVoteWithdrawal, poll.Flags.AllowMultipleSlots, poll.Flags.AllowMaybe, poll.Flags.ResultsPublic,
			poll.ExpiryReminder.Enabled, poll.ExpiryReminder.HoursBefore,
			poll.IsTestData,
		)

		var createdAt, updatedAt pgtype.Timestamptz
		if err := row.Scan(&poll.ID, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("insert poll: %w", err)
		}
		poll.CreatedAt = timeFromPgRequired(createdAt)
		poll.UpdatedAt = timeFromPgRequired(updatedAt)

		for i := range options {
			opt := &options[i]
			opt.PollID = poll.ID
			r := tx.(*txHandle).q.QueryRow(ctx, `
				INSERT INTO poll_options (poll_id, text, image_url, alt_text, start_time, end_time, max_capacity, "order")
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				RETURNING id`,
				opt.PollID, opt.Text, opt.ImageURL, opt.AltText, pgTimestamptz(opt.StartTime), pgTimestamptz(opt.EndTime), pgInt4(opt.MaxCapacity), opt.Order,
			)
			if err := r.Scan(&opt.ID); err != nil {
				return fmt.Errorf("insert poll option: %w", err)
			}
		}

		created = poll
		createdOptions = options
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, createdOptions, nil
}

func (s *Store) GetPollByID(ctx context.Context, id string) (*types.Poll, error) {
	return s.scanOnePoll(ctx, "WHERE id = $1", id)
}

func (s *Store) GetPollByPublicToken(ctx context.Context, publicToken string) (*types.Poll, error) {
	return s.scanOnePoll(ctx, "WHERE public_token = $1", publicToken)
}

func (s *Store) GetPollByAdminToken(ctx context.Context, adminToken string) (*types.Poll, error) {
	return s.scanOnePoll(ctx, "WHERE admin_token = $1", adminToken)
}

func (s *Store) ListPollsByCreatorUserID(ctx context.Context, userID string) ([]*types.Poll, error) {
	return s.scanPolls(ctx, "WHERE creator_user_id = $1 ORDER BY created_at DESC", userID)
}

func (s *Store) ListPollsByCreatorEmail(ctx context.Context, email string) ([]*types.Poll, error) {
	return s.scanPolls(ctx, "WHERE lower(creator_email) = lower($1) ORDER BY created_at DESC", email)
}

// ListExpiringPollsNeedingReminder finds polls in the §4.8 sweep
// window: reminder enabled, not yet sent, active, with an expiry
// between now and the per-poll reminder horizon.
func (s *Store) ListExpiringPollsNeedingReminder(ctx context.Context, nowUnix, _ int64) ([]*types.Poll, error) {
	return s.scanPolls(ctx, `
		WHERE expiry_reminder_enabled
		  AND NOT expiry_reminder_sent
		  AND is_active
		  AND expires_at IS NOT NULL
		  AND expires_at > to_timestamp($1)
		  AND expires_at <= to_timestamp($1) + (expiry_reminder_hours || ' hours')::interval`,
		nowUnix,
	)
}

func (s *Store) MarkExpiryReminderSent(ctx context.Context, pollID string) error {
	_, err := s.q.Exec(ctx, `UPDATE polls SET expiry_reminder_sent = true, updated_at = now() WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("mark expiry reminder sent: %w", err)
	}
	return nil
}

func (s *Store) UpdatePoll(ctx context.Context, id string, patch internalstore.PollPatch) (*types.Poll, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Title != nil {
		sets = append(sets, "title = "+arg(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+arg(*patch.Description))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = "+arg(*patch.IsActive))
	}
	if patch.ClearExpiresAt {
		sets = append(sets, "expires_at = NULL")
	} else if patch.ExpiresAt != nil {
		sets = append(sets, "expires_at = to_timestamp("+arg(*patch.ExpiresAt)+")")
	}
	if patch.EnableExpiryReminder != nil {
		sets = append(sets, "expiry_reminder_enabled = "+arg(*patch.EnableExpiryReminder))
	}
	if patch.ExpiryReminderHours != nil {
		sets = append(sets, "expiry_reminder_hours = "+arg(*patch.ExpiryReminderHours))
	}
	if patch.Flags != nil {
		sets = append(sets, "allow_vote_edit = "+arg(patch.Flags.AllowVoteEdit))
		sets = append(sets, "allow_vote_withdrawal = "+arg(patch.Flags.AllowVoteWithdrawal))
		sets = append(sets, "allow_multiple_slots = "+arg(patch.Flags.AllowMultipleSlots))
		sets = append(sets, "allow_maybe = "+arg(patch.Flags.AllowMaybe))
		sets = append(sets, "results_public = "+arg(patch.Flags.ResultsPublic))
	}
	if patch.ClearFinalOptionID {
		sets = append(sets, "final_option_id = NULL")
	} else if patch.FinalOptionID != nil {
		sets = append(sets, "final_option_id = "+arg(*patch.FinalOptionID))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE polls SET %s WHERE id = $%d", joinComma(sets), len(args))
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update poll: %w", err)
	}
	return s.GetPollByID(ctx, id)
}

func (s *Store) DeletePoll(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, "DELETE FROM polls WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return nil
}

const pollColumns = `id, kind, title, description, creator_user_id, creator_email,
	admin_token, public_token, is_active, expires_at,
	allow_vote_edit, allow_vote_withdrawal, allow_multiple_slots, allow_maybe, results_public,
	final_option_id, expiry_reminder_enabled, expiry_reminder_hours, expiry_reminder_sent,
	is_test_data, created_at, updated_at`

func (s *Store) scanOnePoll(ctx context.Context, where string, args ...interface{}) (*types.Poll, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM polls %s", pollColumns, where), args...)
	p, err := scanPollRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internalstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan poll: %w", err)
	}
	return p, nil
}

func (s *Store) scanPolls(ctx context.Context, where string, args ...interface{}) ([]*types.Poll, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT %s FROM polls %s", pollColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query polls: %w", err)
	}
	defer rows.Close()

	var polls []*types.Poll
	for rows.Next() {
		p, err := scanPollRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPollRow(row rowScanner) (*types.Poll, error) {
	var p types.Poll
	var expiresAt, createdAt, updatedAt pgtype.Timestamptz
	var finalOptionID pgtype.Int4

	if err := row.Scan(
		&p.ID, &p.Kind, &p.Title, &p.Description, &p.CreatorUserID, &p.CreatorEmail,
		&p.AdminToken, &p.PublicToken, &p.IsActive, &expiresAt,
		&p.Flags.AllowVoteEdit, &p.Flags.AllowVoteWithdrawal, &p.Flags.AllowMultipleSlots, &p.Flags.AllowMaybe, &p.Flags.ResultsPublic,
		&finalOptionID, &p.ExpiryReminder.Enabled, &p.ExpiryReminder.HoursBefore, &p.ExpiryReminder.Sent,
		&p.IsTestData, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	p.ExpiresAt = timeFromPg(expiresAt)
	p.CreatedAt = timeFromPgRequired(createdAt)
	p.UpdatedAt = timeFromPgRequired(updatedAt)
	p.FinalOptionID = intFromPg(finalOptionID)
	return &p, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
