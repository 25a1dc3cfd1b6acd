package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSetting reads one row of the flat admin_settings key-value table,
// used for runtime-overridable configuration such as rate-limit bucket
// tuning (§4.2) without a redeploy.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	row := s.q.QueryRow(ctx, "SELECT value FROM admin_settings WHERE key = $1", key)
	err := row.Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO admin_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
