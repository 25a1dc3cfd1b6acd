package live

import (
	"context"
	"net/http"
	"time"

	"github.com/pollrelay/pollengine/config"
	"github.com/pollrelay/pollengine/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ServerMessage is the wire envelope sent to a connected viewer.
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler upgrades HTTP connections to WebSocket and streams one poll
// channel's events to the viewer, grounded on the teacher's
// internal/websocket.Handler connection lifecycle.
type Handler struct {
	log            *zap.SugaredLogger
	hub            *Hub
	pingInterval   time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
	isDevelopment  bool
}

func NewHandler(hub *Hub, serverCfg *config.ServerConfig) *Handler {
	cfg := DefaultHubConfig()
	return &Handler{
		log:            logger.GetLogger().Named("live_handler"),
		hub:            hub,
		pingInterval:   cfg.PingInterval,
		writeTimeout:   cfg.WriteTimeout,
		allowedOrigins: serverCfg.AllowedOrigins,
		isDevelopment:  serverCfg.Environment == config.EnvDevelopment,
	}
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if h.isDevelopment {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.allowedOrigins
	}
	return opts
}

// HandleConnect upgrades the request and streams channelID's events to
// the connecting viewer until it disconnects. pollID resolution (from
// either the public or admin token) and any admin-only gating happen
// in the caller (handlers.LiveHandler) before this is invoked; this
// type only knows about channel ids and viewer ids.
func (h *Handler) HandleConnect(c *gin.Context, channelID, viewerID string) {
	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions())
	if err != nil {
		h.log.Errorw("failed to accept websocket connection", "error", err, "channelId", channelID)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	viewer, err := h.hub.Join(ctx, channelID, viewerID)
	if err != nil {
		h.log.Errorw("failed to join poll channel", "error", err, "channelId", channelID)
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return
	}
	defer h.hub.Leave(channelID, viewerID)

	if err := h.send(ctx, conn, ServerMessage{Type: "connected", Payload: gin.H{"channelId": channelID}}); err != nil {
		return
	}

	errCh := make(chan error, 2)
	go func() { errCh <- h.writeLoop(ctx, conn, viewer) }()
	go func() { errCh <- h.pingLoop(ctx, conn) }()
	go h.readLoop(ctx, conn) // drain/discard client frames; viewers don't send commands

	err = <-errCh
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		h.log.Debugw("live websocket connection ended", "error", err, "channelId", channelID)
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, viewer *Viewer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-viewer.Wake():
			if !ok {
				return nil
			}
			for _, event := range viewer.Drain() {
				writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
				err := wsjson.Write(writeCtx, conn, ServerMessage{Type: "event", Payload: event})
				cancel()
				if err != nil {
					return err
				}
			}
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// readLoop discards inbound frames but keeps reading so the server
// notices a client-initiated close promptly.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

// ServeHTTP exists for parity with the teacher's Handler, useful for
// tests that drive the handler outside gin.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, channelID, viewerID string) {
	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		return
	}
	ctx := r.Context()
	viewer, err := h.hub.Join(ctx, channelID, viewerID)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return
	}
	defer h.hub.Leave(channelID, viewerID)

	errCh := make(chan error, 2)
	go func() { errCh <- h.writeLoop(ctx, conn, viewer) }()
	go func() { errCh <- h.pingLoop(ctx, conn) }()
	go h.readLoop(ctx, conn)
	<-errCh
}
