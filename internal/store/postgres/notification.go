package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/pollrelay/pollengine/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Store) CreateNotificationLog(ctx context.Context, log *types.NotificationLog) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO notification_logs (poll_id, type, recipient_email, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at`,
		log.PollID, log.Type, log.RecipientEmail,
	)
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&log.ID, &createdAt); err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	log.CreatedAt = timeFromPgRequired(createdAt)
	return nil
}

// CountNotifications implements the §4.8 reminder cap check: how many
// notifications of notifType have gone out for a poll since sinceUnix.
func (s *Store) CountNotifications(ctx context.Context, pollID string, notifType types.NotificationType, sinceUnix int64) (int, error) {
	var count int
	row := s.q.QueryRow(ctx, `
		SELECT count(*) FROM notification_logs
		WHERE poll_id = $1 AND type = $2 AND created_at >= to_timestamp($3)`,
		pollID, notifType, sinceUnix,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// LastNotificationAt implements the §4.8 cooldown check (min 4h
// between manual reminders). ok is false when no such notification has
// ever been sent.
func (s *Store) LastNotificationAt(ctx context.Context, pollID string, notifType types.NotificationType) (int64, bool, error) {
	row := s.q.QueryRow(ctx, `
		SELECT created_at FROM notification_logs
		WHERE poll_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT 1`,
		pollID, notifType,
	)
	var createdAt pgtype.Timestamptz
	err := row.Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last notification at: %w", err)
	}
	return createdAt.Time.Unix(), true, nil
}

func (s *Store) PurgeExpiredPasswordResetTokens(ctx context.Context, nowUnix int64) (int, error) {
	tag, err := s.q.Exec(ctx, "DELETE FROM password_reset_tokens WHERE expires_at <= to_timestamp($1)", nowUnix)
	if err != nil {
		return 0, fmt.Errorf("purge password reset tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) PurgeExpiredEmailChangeTokens(ctx context.Context, nowUnix int64) (int, error) {
	tag, err := s.q.Exec(ctx, "DELETE FROM email_change_tokens WHERE expires_at <= to_timestamp($1)", nowUnix)
	if err != nil {
		return 0, fmt.Errorf("purge email change tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
