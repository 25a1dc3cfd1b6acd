package identity

import (
	"context"
	"errors"

	"github.com/pollrelay/pollengine/internal/store"
)

// StoreLookup adapts store.PollStore's GetUserByEmail to the narrower
// UserLookup interface CheckEmailOwnership depends on.
type StoreLookup struct {
	Store store.PollStore
}

func NewStoreLookup(s store.PollStore) *StoreLookup {
	return &StoreLookup{Store: s}
}

func (l *StoreLookup) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	user, err := l.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
