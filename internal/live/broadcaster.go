package live

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pollrelay/pollengine/internal/results"
	"github.com/pollrelay/pollengine/internal/utils"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"go.uber.org/zap"
)

// EventPublisher is the subset of *events.Service the broadcaster
// needs; narrowed to an interface so it can be faked in tests.
type EventPublisher interface {
	Publish(ctx context.Context, channelToken string, event types.Event) error
}

// Broadcaster implements voteengine.Broadcaster and the slot_update /
// vote_update / viewer_count publishing of §4.7, on top of the
// teacher's events.Service pub/sub transport.
type Broadcaster struct {
	publisher EventPublisher
	log       *zap.SugaredLogger
}

func NewBroadcaster(publisher EventPublisher) *Broadcaster {
	return &Broadcaster{publisher: publisher, log: logger.GetLogger().Named("live_broadcaster")}
}

// BroadcastSlotUpdate implements voteengine.Broadcaster: it computes
// per-option {current_count, max_capacity} and publishes slot_update
// on the poll's one channel, reaching both public and admin viewers.
func (b *Broadcaster) BroadcastSlotUpdate(ctx context.Context, pollID string, options []types.Option, allVotes []types.Vote) {
	deduped := results.Dedup(allVotes)
	stats := results.Stats(options, deduped)

	optionStates := make(map[int]types.OptionSlotState, len(options))
	for _, opt := range options {
		s := stats[opt.ID]
		optionStates[opt.ID] = types.OptionSlotState{CurrentCount: s.Current, MaxCapacity: opt.MaxCapacity}
	}

	payload, err := json.Marshal(types.SlotUpdatePayload{Options: optionStates})
	if err != nil {
		b.log.Errorw("failed to marshal slot_update payload", "error", err, "pollId", pollID)
		return
	}

	event := types.Event{
		BaseEvent: types.BaseEvent{
			ID:           utils.GenerateEventID(),
			Type:         types.EventTypeSlotUpdate,
			ChannelToken: CanonicalChannelID(pollID),
			Timestamp:    time.Now(),
			Version:      1,
		},
		Metadata: types.EventMetadata{Source: "vote_engine"},
		Payload:  payload,
	}
	if err := b.publisher.Publish(ctx, event.ChannelToken, event); err != nil {
		b.log.Warnw("failed to publish slot_update", "error", err, "pollId", pollID)
	}
}

// BroadcastVoteUpdate publishes the lighter-weight vote_update
// notification for schedule/survey polls, where clients re-fetch
// results rather than receiving a full tally inline.
func (b *Broadcaster) BroadcastVoteUpdate(ctx context.Context, pollID string) {
	payload, err := json.Marshal(types.VoteUpdatePayload{PollID: pollID})
	if err != nil {
		b.log.Errorw("failed to marshal vote_update payload", "error", err, "pollId", pollID)
		return
	}
	event := types.Event{
		BaseEvent: types.BaseEvent{
			ID:           utils.GenerateEventID(),
			Type:         types.EventTypeVoteUpdate,
			ChannelToken: CanonicalChannelID(pollID),
			Timestamp:    time.Now(),
			Version:      1,
		},
		Metadata: types.EventMetadata{Source: "vote_engine"},
		Payload:  payload,
	}
	if err := b.publisher.Publish(ctx, event.ChannelToken, event); err != nil {
		b.log.Warnw("failed to publish vote_update", "error", err, "pollId", pollID)
	}
}
