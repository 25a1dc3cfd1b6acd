package scheduler

import (
	"context"
	"time"

	apperrors "github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
)

const (
	// ManualReminderMaxPerPoll caps how many manual reminders a creator
	// can send for a single poll (§4.8).
	ManualReminderMaxPerPoll = 3
	// ManualReminderMinInterval is the minimum gap between manual
	// reminders for the same poll (§4.8).
	ManualReminderMinInterval = 4 * time.Hour
)

// CheckManualReminderAllowed enforces §4.8's manual-reminder guard: max
// three sends per poll, at least four hours apart. It is consumed by
// the API handler that services POST .../remind, not by the
// scheduler's own sweep loop.
func CheckManualReminderAllowed(ctx context.Context, pollStore store.PollStore, pollID string) error {
	count, err := pollStore.CountNotifications(ctx, pollID, types.NotificationManualReminder, 0)
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	if count >= ManualReminderMaxPerPoll {
		return apperrors.NewConflict(apperrors.CodeReminderLimitReached, "manual reminder limit reached for this poll", map[string]interface{}{
			"limit": ManualReminderMaxPerPoll,
		})
	}

	lastAt, found, err := pollStore.LastNotificationAt(ctx, pollID, types.NotificationManualReminder)
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	if found {
		elapsed := time.Since(time.Unix(lastAt, 0))
		if elapsed < ManualReminderMinInterval {
			retryAfter := ManualReminderMinInterval - elapsed
			return apperrors.NewConflict(apperrors.CodeReminderTooSoon, "manual reminder sent too recently", map[string]interface{}{
				"retryAfterSeconds": int(retryAfter.Seconds()),
			})
		}
	}

	return nil
}
