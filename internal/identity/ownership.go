package identity

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/pollrelay/pollengine/errors"
)

// UserLookup is the minimal user-registry dependency the ownership
// rule and the email-existence check need; satisfied by whatever
// collaborator owns the users table (out of this module's scope per
// spec.md's Non-goals on the OIDC/auth provider).
type UserLookup interface {
	// FindUserIDByEmail returns the user id owning email, "" if none.
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// CheckEmailOwnership implements the §4.4 email-ownership rule: an
// anonymous or third-party voter may not claim a registered user's
// email, and an authenticated user may not claim someone else's.
func CheckEmailOwnership(ctx context.Context, lookup UserLookup, voterEmail string, authenticatedUserID string) error {
	if voterEmail == "" {
		return nil
	}
	ownerID, err := lookup.FindUserIDByEmail(ctx, strings.ToLower(voterEmail))
	if err != nil {
		return err
	}
	if ownerID == "" {
		return nil
	}
	if authenticatedUserID == "" {
		return errors.RequiresLogin("This email belongs to a registered account. Please sign in to vote with it.")
	}
	if ownerID != authenticatedUserID {
		return errors.EmailBelongsToAnotherUser("This email belongs to another account.")
	}
	return nil
}

// EmailExistenceDelay sleeps a random 100-150ms, per §4.4, so the
// email-existence-check endpoint's response time doesn't leak whether
// an address is registered.
func EmailExistenceDelay() {
	jitter := time.Duration(100+rand.Intn(51)) * time.Millisecond
	time.Sleep(jitter)
}
