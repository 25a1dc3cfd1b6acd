package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pollrelay/pollengine/internal/utils"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"go.uber.org/zap"
)

// EventSubscriber decouples the hub from the concrete events.Service,
// grounded on the teacher's websocket.EventSubscriber interface.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channelToken string, viewerID string, filters ...types.EventType) (<-chan types.Event, error)
	Unsubscribe(ctx context.Context, channelToken string, viewerID string) error
}

// Viewer is one connected client on one poll channel.
type Viewer struct {
	ID        string
	ChannelID string
	queue     *dropOldestQueue
	mu        sync.Mutex
	closed    bool
	cancel    context.CancelFunc
}

// Wake fires whenever new events are buffered; a handler should Drain
// after each receive and write the results to its connection.
func (v *Viewer) Wake() <-chan struct{} { return v.queue.Wake() }
func (v *Viewer) Drain() []types.Event  { return v.queue.Drain() }
func (v *Viewer) IsClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// HubConfig mirrors the teacher's websocket.HubConfig shape.
type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{PingInterval: 30 * time.Second, WriteTimeout: 10 * time.Second}
}

// channelState tracks the viewer set of one poll channel.
type channelState struct {
	viewers map[string]*Viewer
}

// Hub is the Live Dispatcher's per-process viewer registry: one
// channel per poll, many viewers per channel, both admin and public
// tokens routed to the same channel id by the caller before reaching
// the hub.
type Hub struct {
	log          *zap.SugaredLogger
	subscriber   EventSubscriber
	mu           sync.RWMutex
	channels     map[string]*channelState
	pingInterval time.Duration
	writeTimeout time.Duration
}

func NewHub(subscriber EventSubscriber, cfg ...HubConfig) *Hub {
	c := DefaultHubConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	return &Hub{
		log:          logger.GetLogger().Named("live_hub"),
		subscriber:   subscriber,
		channels:     make(map[string]*channelState),
		pingInterval: c.PingInterval,
		writeTimeout: c.WriteTimeout,
	}
}

// Join registers viewerID on a poll channel and starts forwarding its
// events into a bounded drop-oldest queue.
func (h *Hub) Join(ctx context.Context, channelID, viewerID string) (*Viewer, error) {
	subCtx, cancel := context.WithCancel(ctx)
	eventCh, err := h.subscriber.Subscribe(subCtx, channelID, viewerID)
	if err != nil {
		cancel()
		return nil, err
	}

	viewer := &Viewer{ID: viewerID, ChannelID: channelID, queue: newDropOldestQueue(), cancel: cancel}

	h.mu.Lock()
	state, ok := h.channels[channelID]
	if !ok {
		state = &channelState{viewers: make(map[string]*Viewer)}
		h.channels[channelID] = state
	}
	state.viewers[viewerID] = viewer
	count := len(state.viewers)
	h.mu.Unlock()

	go func() {
		defer cancel()
		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				viewer.queue.Push(event)
			}
		}
	}()

	h.broadcastViewerCount(ctx, channelID, count)
	h.log.Infow("viewer joined poll channel", "channelId", channelID, "viewerId", viewerID, "viewerCount", count)
	return viewer, nil
}

// Leave removes a viewer from its channel and tears down its
// subscription.
func (h *Hub) Leave(channelID, viewerID string) {
	h.mu.Lock()
	state, ok := h.channels[channelID]
	if !ok {
		h.mu.Unlock()
		return
	}
	viewer, ok := state.viewers[viewerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(state.viewers, viewerID)
	count := len(state.viewers)
	if len(state.viewers) == 0 {
		delete(h.channels, channelID)
	}
	h.mu.Unlock()

	viewer.mu.Lock()
	if !viewer.closed {
		viewer.closed = true
		viewer.cancel()
		viewer.queue.Close()
	}
	viewer.mu.Unlock()

	_ = h.subscriber.Unsubscribe(context.Background(), channelID, viewerID)
	h.broadcastViewerCount(context.Background(), channelID, count)
}

// ViewerCount returns the number of viewers currently on a channel.
func (h *Hub) ViewerCount(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.channels[channelID]
	if !ok {
		return 0
	}
	return len(state.viewers)
}

func (h *Hub) broadcastViewerCount(_ context.Context, channelID string, count int) {
	h.mu.RLock()
	state, ok := h.channels[channelID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	event := types.Event{
		BaseEvent: types.BaseEvent{
			ID:           utils.GenerateEventID(),
			Type:         types.EventTypeViewerCount,
			ChannelToken: channelID,
			Timestamp:    time.Now(),
			Version:      1,
		},
	}
	raw, err := json.Marshal(types.ViewerCountPayload{Count: count})
	if err != nil {
		return
	}
	event.Payload = raw

	h.mu.RLock()
	viewers := make([]*Viewer, 0, len(state.viewers))
	for _, v := range state.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		v.queue.Push(event)
	}
}
