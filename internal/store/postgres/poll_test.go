package postgres

import (
	"context"
	"testing"
	"time"

	internalstore "github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore builds a Store against a pgxmock pool, bypassing New
// (which wants a concrete *pgxpool.Pool) since both satisfy the
// package-private dbtx interface Store.q actually needs.
func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Store{q: mock}, mock
}

func pollRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "kind", "title", "description", "creator_user_id", "creator_email",
		"admin_token", "public_token", "is_active", "expires_at",
		"allow_vote_edit", "allow_vote_withdrawal", "allow_multiple_slots", "allow_maybe", "results_public",
		"final_option_id", "expiry_reminder_enabled", "expiry_reminder_hours", "expiry_reminder_sent",
		"is_test_data", "created_at", "updated_at",
	}).AddRow(
		"poll-1", types.PollKindSurvey, "Team lunch", "", nil, nil,
		"admin-tok", "pub-tok", true, nil,
		true, true, false, true, true,
		nil, true, 24, false,
		false, time.Now(), time.Now(),
	)
}

func TestGetPollByPublicToken_Found(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.|\n)* FROM polls WHERE public_token = \\$1").
		WithArgs("pub-tok").
		WillReturnRows(pollRow())

	poll, err := s.GetPollByPublicToken(context.Background(), "pub-tok")
	require.NoError(t, err)
	assert.Equal(t, "poll-1", poll.ID)
	assert.Equal(t, "admin-tok", poll.AdminToken)
	assert.Equal(t, 24, poll.ExpiryReminder.HoursBefore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPollByPublicToken_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.|\n)* FROM polls WHERE public_token = \\$1").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "title", "description", "creator_user_id", "creator_email",
			"admin_token", "public_token", "is_active", "expires_at",
			"allow_vote_edit", "allow_vote_withdrawal", "allow_multiple_slots", "allow_maybe", "results_public",
			"final_option_id", "expiry_reminder_enabled", "expiry_reminder_hours", "expiry_reminder_sent",
			"is_test_data", "created_at", "updated_at",
		}))

	_, err := s.GetPollByPublicToken(context.Background(), "missing")
	assert.ErrorIs(t, err, internalstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExpiryReminderSent_IssuesUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE polls SET expiry_reminder_sent = true").
		WithArgs("poll-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkExpiryReminderSent(context.Background(), "poll-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePoll_IssuesDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM polls WHERE id = \\$1").
		WithArgs("poll-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := s.DeletePoll(context.Background(), "poll-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
