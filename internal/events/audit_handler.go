package events

import (
	"context"
	"encoding/json"

	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"go.uber.org/zap"
)

// AuditHandler is a local-process EventHandler registered with a
// Service's Router (alongside the Redis fan-out) to keep a structured
// log trail of every poll-channel event, independent of whether any
// viewer is currently connected to receive it.
type AuditHandler struct {
	log *zap.SugaredLogger
}

// NewAuditHandler builds the poll-domain audit handler.
func NewAuditHandler() *AuditHandler {
	return &AuditHandler{log: logger.GetLogger().Named("event_audit")}
}

// HandleEvent implements the EventHandler interface.
func (h *AuditHandler) HandleEvent(ctx context.Context, event types.Event) error {
	switch event.Type {
	case types.EventTypeSlotUpdate:
		var payload types.SlotUpdatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		h.log.Infow("slot update",
			"channelToken", event.ChannelToken,
			"options", len(payload.Options),
		)
	case types.EventTypeVoteUpdate:
		var payload types.VoteUpdatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		h.log.Infow("vote update", "channelToken", event.ChannelToken, "pollId", payload.PollID)
	case types.EventTypeViewerCount:
		var payload types.ViewerCountPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		h.log.Infow("viewer count", "channelToken", event.ChannelToken, "count", payload.Count)
	}
	return nil
}

// SupportedEvents implements the EventHandler interface.
func (h *AuditHandler) SupportedEvents() []types.EventType {
	return []types.EventType{
		types.EventTypeSlotUpdate,
		types.EventTypeVoteUpdate,
		types.EventTypeViewerCount,
	}
}
