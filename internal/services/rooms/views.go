package rooms

import (
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/presence"
)

// Summary is the public view of a room; it never carries secrets
type Summary struct {
	ID          model.RoomID     `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Background  string           `json:"background,omitempty"`
	Capacity    int              `json:"capacity"`
	MemberCount int              `json:"member_count"`
	HasPassword bool             `json:"has_password"`
	InviteOnly  bool             `json:"invite_only"`
	Permanent   bool             `json:"permanent"`
	HostID      model.IdentityID `json:"host_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Summarize builds the public view of a room
func Summarize(r *model.Room) Summary {
	s := Summary{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Background:  r.Background,
		Capacity:    r.Capacity,
		MemberCount: len(r.Members),
		HasPassword: r.HasPassword(),
		InviteOnly:  r.InviteOnly,
		Permanent:   r.Permanent,
		CreatedAt:   r.CreatedAt,
	}
	if host := r.GetHost(); host != nil {
		s.HostID = host.IdentityID
	}
	return s
}

// MemberView is a member with its current display metadata and presence
type MemberView struct {
	model.Display
	IsHost       bool           `json:"is_host"`
	JoinedAt     time.Time      `json:"joined_at"`
	LastActivity time.Time      `json:"last_activity"`
	MessageCount int            `json:"message_count"`
	State        presence.State `json:"state"`
}

// Room update reasons
const (
	RoomCreated = "created"
	RoomUpdated = "updated"
	RoomDeleted = "deleted"
)

// RoomUpdatePayload is published to the lobby and room topics when a room changes
type RoomUpdatePayload struct {
	Reason string  `json:"reason"`
	Room   Summary `json:"room"`
}
