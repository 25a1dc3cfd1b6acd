// Package scheduler implements the Expiry & Reminder Scheduler (C8): a
// fixed-period background sweep, grounded on the teacher's
// background-goroutine-with-shutdown-channel style used by
// websocket.Hub.Shutdown and events.RedisPublisher.Shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"go.uber.org/zap"
)

// Notifier is the scheduler's outbound-email dependency for expiry
// reminders.
type Notifier interface {
	EnqueueExpiryReminder(ctx context.Context, poll *types.Poll)
}

// Config controls the sweep period; defaults match §4.8's "≈1 min".
type Config struct {
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{SweepInterval: time.Minute}
}

// Scheduler runs the periodic expiry-reminder and token-purge sweep.
type Scheduler struct {
	log      *zap.SugaredLogger
	store    store.PollStore
	notifier Notifier
	interval time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

func New(pollStore store.PollStore, notifier Notifier, cfg ...Config) *Scheduler {
	c := DefaultConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	return &Scheduler{
		log:        logger.GetLogger().Named("scheduler"),
		store:      pollStore,
		notifier:   notifier,
		interval:   c.SweepInterval,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Shutdown is
// called. It blocks; callers should run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.sendExpiryReminders(ctx)
	s.purgeExpiredTokens(ctx)
}

// sendExpiryReminders implements §4.8's first responsibility: find
// polls crossing their reminder horizon, notify, and mark sent.
func (s *Scheduler) sendExpiryReminders(ctx context.Context) {
	now := time.Now().Unix()
	polls, err := s.store.ListExpiringPollsNeedingReminder(ctx, now, 0)
	if err != nil {
		s.log.Errorw("failed to list polls needing expiry reminder", "error", err)
		return
	}

	for _, poll := range polls {
		if err := s.store.MarkExpiryReminderSent(ctx, poll.ID); err != nil {
			s.log.Errorw("failed to mark expiry reminder sent", "error", err, "pollId", poll.ID)
			continue
		}
		if s.notifier != nil {
			s.notifier.EnqueueExpiryReminder(ctx, poll)
		}
	}

	if len(polls) > 0 {
		s.log.Infow("sent expiry reminders", "count", len(polls))
	}
}

func (s *Scheduler) purgeExpiredTokens(ctx context.Context) {
	now := time.Now().Unix()
	if n, err := s.store.PurgeExpiredPasswordResetTokens(ctx, now); err != nil {
		s.log.Errorw("failed to purge password reset tokens", "error", err)
	} else if n > 0 {
		s.log.Infow("purged expired password reset tokens", "count", n)
	}
	if n, err := s.store.PurgeExpiredEmailChangeTokens(ctx, now); err != nil {
		s.log.Errorw("failed to purge email change tokens", "error", err)
	} else if n > 0 {
		s.log.Infow("purged expired email change tokens", "count", n)
	}
}

// Shutdown stops the sweep loop and waits for the current sweep, if
// any, to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
