package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertTestUser ensures a user row exists in the users table, for
// integration tests that need a creator_user_id to attach a poll to.
func InsertTestUser(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, email string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO users(id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, email)
	return err
}
