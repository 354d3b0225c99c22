package model

import "time"

// MessageID identifies a message
type MessageID string

// MessageType tags how a message is rendered
type MessageType string

const (
	MessageNormal       MessageType = "normal"
	MessageSystem       MessageType = "system"
	MessageAnnouncement MessageType = "announcement"
)

// Message is an entry in a room's append-only log
type Message struct {
	ID        MessageID   `json:"id"`
	RoomID    RoomID      `json:"room_id"`
	SenderID  IdentityID  `json:"sender_id,omitempty"` // empty for system messages
	Body      string      `json:"body"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// MentionID identifies a mention row
type MentionID string

// Mention is a notification row referencing a message
type Mention struct {
	ID          MentionID  `json:"id"`
	MessageID   MessageID  `json:"message_id"`
	RoomID      RoomID     `json:"room_id"`
	RecipientID IdentityID `json:"recipient_id"`
	SenderID    IdentityID `json:"sender_id"`
	CreatedAt   time.Time  `json:"created_at"`
	Read        bool       `json:"read"`
}

// MessageView is a message joined with the sender's current display metadata
type MessageView struct {
	Message
	Sender Display `json:"sender"`
}
