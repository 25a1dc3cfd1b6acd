package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pollrelay/pollengine/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventSerializeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_serialize_seconds",
		Help:    "Time spent serializing events",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
	})
	EventSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_size_bytes",
		Help:    "Serialized event sizes in bytes",
		Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096},
	})
)

func init() {
	prometheus.MustRegister(
		EventSerializeDuration,
		EventSizeBytes,
	)
}

// EventType identifies the kind of message the Live Dispatcher (§4.7)
// fans out over a poll channel.
type EventType string

const (
	CategoryPoll = "POLL"
)

const (
	// EventTypeSlotUpdate carries the post-commit {current, capacity}
	// count for every option of an organization poll.
	EventTypeSlotUpdate EventType = CategoryPoll + "_SLOT_UPDATE"
	// EventTypeVoteUpdate is a lightweight signal on any vote mutation;
	// viewers re-fetch results on receipt rather than trust the payload.
	EventTypeVoteUpdate EventType = CategoryPoll + "_VOTE_UPDATE"
	// EventTypeViewerCount is broadcast on subscriber join/leave.
	EventTypeViewerCount EventType = CategoryPoll + "_VIEWER_COUNT"
)

// BaseEvent is the envelope shared by every event on a poll channel.
// ChannelToken identifies the poll channel (§4.7 — both the public and
// admin tokens of a poll route to the same logical channel).
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ChannelToken  string    `json:"channelToken"`
	Timestamp     time.Time `json:"timestamp"`
	Version       int       `json:"version"`
}

// EventMetadata for tracking and debugging.
type EventMetadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	Source        string            `json:"source"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// Event is the wire envelope published to a channel and forwarded to
// every connected viewer.
type Event struct {
	BaseEvent
	Metadata EventMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Validate checks the envelope is well-formed before publish.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.ValidationFailed("invalid event", "event ID is required")
	}
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.ChannelToken == "" {
		return errors.ValidationFailed("invalid event", "channel token is required")
	}
	if e.Timestamp.IsZero() {
		return errors.ValidationFailed("invalid event", "timestamp is required")
	}
	return nil
}

// EventPublisher is the fan-out contract the Live Dispatcher (C7) and
// the store-layer callers that trigger broadcasts depend on.
type EventPublisher interface {
	Publish(ctx context.Context, channelToken string, event Event) error
	PublishBatch(ctx context.Context, channelToken string, events []Event) error
	Subscribe(ctx context.Context, channelToken string, viewerID string, filters ...EventType) (<-chan Event, error)
	Unsubscribe(ctx context.Context, channelToken string, viewerID string) error
}

// EventHandler processes events for components that consume rather
// than relay them (e.g. metrics, audit logging).
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
	SupportedEvents() []EventType
}

// SlotUpdatePayload is the Payload of an EventTypeSlotUpdate event:
// per-option signup counts for an organization poll.
type SlotUpdatePayload struct {
	Options map[int]OptionSlotState `json:"options"`
}

// OptionSlotState is one option's current signup count against its
// capacity within a SlotUpdatePayload.
type OptionSlotState struct {
	CurrentCount int  `json:"currentCount"`
	MaxCapacity  *int `json:"maxCapacity,omitempty"`
}

// VoteUpdatePayload is the Payload of an EventTypeVoteUpdate event.
// Deliberately minimal: viewers re-fetch results rather than trust it.
type VoteUpdatePayload struct {
	PollID string `json:"pollId"`
}

// ViewerCountPayload is the Payload of an EventTypeViewerCount event.
type ViewerCountPayload struct {
	Count int `json:"count"`
}
