package events

import (
	"context"
	"encoding/json"
	"time"

	internal_errors "github.com/pollrelay/pollengine/internal/errors"
	"github.com/pollrelay/pollengine/internal/utils"
	"github.com/pollrelay/pollengine/types"
)

// PublishEventWithContext builds a standard types.Event and publishes it
// on the given poll channel, used by components that fire events as a
// side effect (e.g. the Vote Engine) without constructing the envelope
// by hand.
func PublishEventWithContext(publisher types.EventPublisher, ctx context.Context, eventType string, channelToken string, data map[string]interface{}, source string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return internal_errors.NewOperationFailedError("Failed to marshal event data", err)
	}

	event := types.Event{
		BaseEvent: types.BaseEvent{
			ID:           utils.GenerateEventID(),
			Type:         types.EventType(eventType),
			ChannelToken: channelToken,
			Timestamp:    time.Now(),
			Version:      1,
		},
		Metadata: types.EventMetadata{
			Source: source,
		},
		Payload: payload,
	}

	if err := publisher.Publish(ctx, channelToken, event); err != nil {
		return internal_errors.NewOperationFailedError("Failed to publish event", err)
	}

	return nil
}
