package model

import "time"

// EventType identifies the type of a realtime event
type EventType string

const (
	EventConnected           EventType = "connected"
	EventHeartbeat           EventType = "heartbeat"
	EventNewMessage          EventType = "new_message"
	EventUserUpdate          EventType = "user_update"
	EventNotificationsUpdate EventType = "notifications_update"
	EventRoomUpdate          EventType = "room_update"
	EventReconnect           EventType = "reconnect"
	EventError               EventType = "error"
)

// Event is the envelope fanned out to stream subscribers
type Event struct {
	Type      EventType `json:"type"`
	RoomID    RoomID    `json:"room_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// UserUpdatePayload describes a membership or presence change
type UserUpdatePayload struct {
	Reason     string     `json:"reason"`
	IdentityID IdentityID `json:"identity_id,omitempty"`
	HostID     IdentityID `json:"host_id,omitempty"`
}

// User update reasons
const (
	ReasonJoined       = "joined"
	ReasonLeft         = "left"
	ReasonKicked       = "kicked"
	ReasonBanned       = "banned"
	ReasonDisconnected = "disconnected"
	ReasonHostChanged  = "host_changed"
	ReasonStyleChanged = "style_changed"
	ReasonMuted        = "muted"
	ReasonUnmuted      = "unmuted"
)

// NotificationsPayload tells a user something addressed to them changed
type NotificationsPayload struct {
	Kind    string `json:"kind"`
	Unread  int    `json:"unread,omitempty"`
	RoomID  RoomID `json:"room_id,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Notification kinds
const (
	NotifyMention       = "mention"
	NotifyKnock         = "knock"
	NotifyKnockResolved = "knock_resolved"
	NotifyReward        = "reward"
)
