package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

const (
	// Maximum inbound frame size; clients only send control frames
	maxInboundSize = 512

	closeReconnect = "reconnect"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and streams the hub's events as websocket text
// frames. It carries the same events and bounds as ServeSSE.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, identityID model.IdentityID, cfg StreamConfig, admit Admit, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	write := func(messageType int, data []byte) error {
		if cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		}
		return conn.WriteMessage(messageType, data)
	}
	closeWith := func(code int, text string) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(time.Second))
	}

	client := NewClient(hub, identityID, cfg.BufferSize)
	if !hub.Register(client) {
		_ = write(websocket.TextMessage, controlEvent(model.EventReconnect, nil))
		closeWith(websocket.CloseGoingAway, closeReconnect)
		return
	}
	defer hub.Unregister(client)
	if !admitted(r.Context(), admit) {
		_ = write(websocket.TextMessage, controlEvent(model.EventReconnect, nil))
		closeWith(websocket.CloseGoingAway, closeReconnect)
		return
	}

	// The read pump only watches for the peer going away
	pongWait := 2 * cfg.HeartbeatInterval
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error",
						slog.String("identity_id", string(identityID)),
						slog.Any("error", err))
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()

	if err := write(websocket.TextMessage, connectedEvent(hub, identityID, cfg)); err != nil {
		return
	}

	heartbeat := time.NewTicker(cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	deadline := time.NewTimer(cfg.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				_ = write(websocket.TextMessage, controlEvent(model.EventReconnect, nil))
				closeWith(websocket.CloseGoingAway, closeReconnect)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := write(websocket.TextMessage, controlEvent(model.EventHeartbeat, nil)); err != nil {
				return
			}
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-deadline.C:
			_ = write(websocket.TextMessage, controlEvent(model.EventReconnect, nil))
			closeWith(websocket.CloseNormalClosure, closeReconnect)
			return

		case <-gone:
			return

		case <-r.Context().Done():
			return
		}
	}
}
