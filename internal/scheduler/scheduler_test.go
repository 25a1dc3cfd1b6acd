package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchedulerStore struct {
	store.PollStore

	expiringPolls       []*types.Poll
	markedSent          []string
	purgedPasswordReset int
	purgedEmailChange   int
}

func (f *fakeSchedulerStore) ListExpiringPollsNeedingReminder(ctx context.Context, now, horizon int64) ([]*types.Poll, error) {
	return f.expiringPolls, nil
}
func (f *fakeSchedulerStore) MarkExpiryReminderSent(ctx context.Context, pollID string) error {
	f.markedSent = append(f.markedSent, pollID)
	return nil
}
func (f *fakeSchedulerStore) PurgeExpiredPasswordResetTokens(ctx context.Context, nowUnix int64) (int, error) {
	return f.purgedPasswordReset, nil
}
func (f *fakeSchedulerStore) PurgeExpiredEmailChangeTokens(ctx context.Context, nowUnix int64) (int, error) {
	return f.purgedEmailChange, nil
}

type fakeNotifier struct {
	reminded []*types.Poll
}

func (f *fakeNotifier) EnqueueExpiryReminder(ctx context.Context, poll *types.Poll) {
	f.reminded = append(f.reminded, poll)
}

func TestRunSweep_SendsRemindersAndMarksSent(t *testing.T) {
	fs := &fakeSchedulerStore{expiringPolls: []*types.Poll{{ID: "poll-1"}, {ID: "poll-2"}}}
	notifier := &fakeNotifier{}
	s := New(fs, notifier, Config{SweepInterval: time.Minute})

	s.runSweep(context.Background())

	assert.ElementsMatch(t, []string{"poll-1", "poll-2"}, fs.markedSent)
	assert.Len(t, notifier.reminded, 2)
}

func TestRunSweep_NoExpiringPollsIsNoOp(t *testing.T) {
	fs := &fakeSchedulerStore{}
	notifier := &fakeNotifier{}
	s := New(fs, notifier, Config{SweepInterval: time.Minute})

	s.runSweep(context.Background())

	assert.Empty(t, notifier.reminded)
}

func TestStartAndShutdown_StopsCleanly(t *testing.T) {
	fs := &fakeSchedulerStore{}
	s := New(fs, &fakeNotifier{}, Config{SweepInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
}

func TestDefaultConfig_OneMinuteSweep(t *testing.T) {
	assert.Equal(t, time.Minute, DefaultConfig().SweepInterval)
}
