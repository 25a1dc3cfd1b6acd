package postgres

import (
	"context"
	"errors"
	"fmt"

	internalstore "github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetUserByEmail backs C4's email-ownership rule: given a voter-supplied
// email, find the user account that owns it, if any. Account rows
// themselves are created by the external auth providers named in §1;
// this store only reads.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	row := s.q.QueryRow(ctx, "SELECT id, email, created_at FROM users WHERE email = $1", email)
	return scanUserRow(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	row := s.q.QueryRow(ctx, "SELECT id, email, created_at FROM users WHERE id = $1", id)
	return scanUserRow(row)
}

func scanUserRow(row rowScanner) (*types.User, error) {
	var u types.User
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&u.ID, &u.Email, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internalstore.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = timeFromPgRequired(createdAt)
	return &u, nil
}
