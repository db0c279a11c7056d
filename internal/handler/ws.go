package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/dispatch"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StreamHandler serves the journal over WebSocket. Each connection is
// a restartable subscription: ?from=N replays entries from sequence N
// before switching to the live feed.
type StreamHandler struct {
	hub      *dispatch.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a StreamHandler backed by the given hub.
func NewStreamHandler(hub *dispatch.Hub, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /stream?from=N.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if s := r.URL.Query().Get("from"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "from must be a non-negative integer")
			return
		}
		from = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	logger := h.logger.With(zap.String("client_id", clientID))
	logger.Info("stream client connected", zap.Uint64("from", from))

	sub := h.hub.Subscribe(from)
	go h.writeLoop(conn, sub, logger)
	h.readLoop(conn, sub)
}

// writeLoop forwards subscription events to the client and keeps the
// connection alive with pings. It exits when the subscription closes
// (engine shutdown or slow-consumer drop) or a write fails.
func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub *dispatch.Subscription, logger *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
		logger.Info("stream client disconnected")
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames, serving only to detect the close
// handshake and answer pings.
func (h *StreamHandler) readLoop(conn *websocket.Conn, sub *dispatch.Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
