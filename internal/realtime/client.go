package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// StreamConfig bounds a single streaming connection
type StreamConfig struct {
	HeartbeatInterval time.Duration
	MaxDuration       time.Duration
	BufferSize        int
	WriteTimeout      time.Duration
}

// DefaultStreamConfig returns the default stream configuration
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: 15 * time.Second,
		MaxDuration:       5 * time.Minute,
		BufferSize:        256,
		WriteTimeout:      10 * time.Second,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	def := DefaultStreamConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = def.MaxDuration
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	return c
}

// Client is one streaming connection registered with a hub
type Client struct {
	hub         *Hub
	identityID  model.IdentityID
	send        chan []byte
	connectedAt time.Time
}

// NewClient creates a new stream client
func NewClient(hub *Hub, identityID model.IdentityID, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultStreamConfig().BufferSize
	}
	return &Client{
		hub:         hub,
		identityID:  identityID,
		send:        make(chan []byte, bufferSize),
		connectedAt: time.Now(),
	}
}

// Admit re-checks a watcher's access once its client is registered. A watcher
// who lost access between the handler's check and registration would otherwise
// miss the eviction. Nil admits everyone.
type Admit func(ctx context.Context) error

func admitted(ctx context.Context, admit Admit) bool {
	return admit == nil || admit(ctx) == nil
}

// ConnectedPayload is the body of the first event on every stream
type ConnectedPayload struct {
	Topic             string           `json:"topic"`
	IdentityID        model.IdentityID `json:"identity_id"`
	HeartbeatInterval int64            `json:"heartbeat_interval_ms"`
	MaxDuration       int64            `json:"max_duration_ms"`
}

func controlEvent(t model.EventType, payload any) []byte {
	data, _ := json.Marshal(model.Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload})
	return data
}

func connectedEvent(hub *Hub, identityID model.IdentityID, cfg StreamConfig) []byte {
	return controlEvent(model.EventConnected, ConnectedPayload{
		Topic:             hub.Topic(),
		IdentityID:        identityID,
		HeartbeatInterval: cfg.HeartbeatInterval.Milliseconds(),
		MaxDuration:       cfg.MaxDuration.Milliseconds(),
	})
}

// FormatSSE frames an encoded event as a server-sent events data line
func FormatSSE(data []byte) []byte {
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame
}

// ServeSSE streams the hub's events to the client as text/event-stream until the
// client goes away, the hub closes or evicts the identity, or the stream reaches
// its maximum duration.
func ServeSSE(w http.ResponseWriter, r *http.Request, hub *Hub, identityID model.IdentityID, cfg StreamConfig, admit Admit) {
	cfg = cfg.withDefaults()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	write := func(data []byte) error {
		if cfg.WriteTimeout > 0 {
			if err := rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if _, err := w.Write(FormatSSE(data)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	client := NewClient(hub, identityID, cfg.BufferSize)
	if !hub.Register(client) {
		_ = write(controlEvent(model.EventReconnect, nil))
		return
	}
	defer hub.Unregister(client)
	if !admitted(r.Context(), admit) {
		_ = write(controlEvent(model.EventReconnect, nil))
		return
	}

	if err := write(connectedEvent(hub, identityID, cfg)); err != nil {
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
				// Hub closed or evicted us; ask the client to come back
				_ = write(controlEvent(model.EventReconnect, nil))
				return
			}
			if err := write(data); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := write(controlEvent(model.EventHeartbeat, nil)); err != nil {
				return
			}

		case <-deadline.C:
			_ = write(controlEvent(model.EventReconnect, nil))
			return

		case <-r.Context().Done():
			return
		}
	}
}
