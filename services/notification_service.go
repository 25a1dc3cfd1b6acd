package services

import (
	"context"
	"fmt"

	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"go.uber.org/zap"
)

// NotificationFacadeService adapts the thin EmailSender collaborator
// onto the Vote Engine's and Scheduler's Notifier interfaces, firing
// each send on its own goroutine so C5/C8 never block on outbound
// mail, grounded on the teacher's notification-facade/worker-pool
// split (here a goroutine-per-send is enough: email volume is one per
// vote and one per poll per sweep, not a stream needing back-pressure).
type NotificationFacadeService struct {
	sender      types.EmailSender
	store       store.PollStore
	frontendURL string
	log         *zap.SugaredLogger
}

func NewNotificationFacadeService(sender types.EmailSender, pollStore store.PollStore, frontendURL string) *NotificationFacadeService {
	return &NotificationFacadeService{
		sender:      sender,
		store:       pollStore,
		frontendURL: frontendURL,
		log:         logger.GetLogger().Named("notifications"),
	}
}

// EnqueueVoterConfirmation implements voteengine.Notifier.
func (n *NotificationFacadeService) EnqueueVoterConfirmation(ctx context.Context, poll *types.Poll, voterEmail string, voterEditToken string) {
	if voterEmail == "" {
		return
	}
	go func() {
		err := n.sender.SendVoterConfirmation(context.Background(), voterEmail, types.VoterConfirmationEmail{
			PollTitle: poll.Title,
			PublicURL: n.pollURL(poll.PublicToken),
			EditURL:   n.editURL(poll.PublicToken, voterEditToken),
		})
		if err != nil {
			n.log.Errorw("failed to send voter confirmation", "error", err, "pollId", poll.ID)
		}
	}()
}

// EnqueueExpiryReminder implements scheduler.Notifier: notify every
// distinct participant email on the poll, plus the creator if known.
func (n *NotificationFacadeService) EnqueueExpiryReminder(ctx context.Context, poll *types.Poll) {
	recipients, err := n.recipientsFor(ctx, poll)
	if err != nil {
		n.log.Errorw("failed to resolve expiry reminder recipients", "error", err, "pollId", poll.ID)
		return
	}

	for _, to := range recipients {
		to := to
		go func() {
			data := types.ExpiryReminderEmail{
				PollTitle: poll.Title,
				PublicURL: n.pollURL(poll.PublicToken),
			}
			if poll.ExpiresAt != nil {
				data.ExpiresAt = poll.ExpiresAt.Format("2006-01-02 15:04 MST")
			}
			if err := n.sender.SendExpiryReminder(context.Background(), to, data); err != nil {
				n.log.Errorw("failed to send expiry reminder", "error", err, "pollId", poll.ID)
			}
		}()
	}
}

func (n *NotificationFacadeService) recipientsFor(ctx context.Context, poll *types.Poll) ([]string, error) {
	seen := map[string]struct{}{}
	var recipients []string
	add := func(email string) {
		if email == "" {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		recipients = append(recipients, email)
	}

	if poll.CreatorEmail != nil {
		add(*poll.CreatorEmail)
	}

	votes, err := n.store.ListVotesByPoll(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		add(v.VoterEmail)
	}
	return recipients, nil
}

func (n *NotificationFacadeService) pollURL(publicToken string) string {
	return fmt.Sprintf("%s/polls/%s", n.frontendURL, publicToken)
}

func (n *NotificationFacadeService) editURL(publicToken, editToken string) string {
	return fmt.Sprintf("%s/polls/%s?edit=%s", n.frontendURL, publicToken, editToken)
}
