package response

import (
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/identity"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/maintenance"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
)

// Identity represents a user directory entry in API responses
type Identity struct {
	ID               string   `json:"id"`
	Kind             string   `json:"kind"`
	DisplayName      string   `json:"display_name"`
	Username         string   `json:"username,omitempty"`
	Roles            []string `json:"roles,omitempty"`
	Color            string   `json:"color"`
	AvatarHue        int      `json:"avatar_hue"`
	AvatarSaturation int      `json:"avatar_saturation"`
	LastSeenAt       string   `json:"last_seen_at,omitempty"`
}

// IdentityFromUser converts a model.User to a response Identity
func IdentityFromUser(u *model.User) Identity {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	out := Identity{
		ID:               string(u.ID),
		Kind:             string(u.Kind),
		DisplayName:      u.DisplayName,
		Username:         u.Username,
		Roles:            roles,
		Color:            string(u.Color),
		AvatarHue:        u.AvatarHue,
		AvatarSaturation: u.AvatarSaturation,
	}
	if !u.LastSeenAt.IsZero() {
		out.LastSeenAt = u.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return out
}

// IdentityFromModel converts a resolved caller to a response Identity
func IdentityFromModel(i *model.Identity) Identity {
	roles := make([]string, len(i.Roles))
	for j, r := range i.Roles {
		roles[j] = string(r)
	}
	return Identity{
		ID:               string(i.ID),
		Kind:             string(i.Kind),
		DisplayName:      i.DisplayName,
		Username:         i.Username,
		Roles:            roles,
		Color:            string(i.Color),
		AvatarHue:        i.AvatarHue,
		AvatarSaturation: i.AvatarSaturation,
	}
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	Identity     Identity  `json:"identity"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *identity.Session, u *model.User) AuthResponse {
	return AuthResponse{
		Identity:     IdentityFromUser(u),
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Room is a room's public summary plus, when requested, its members
type Room struct {
	rooms.Summary
	Members []rooms.MemberView `json:"members,omitempty"`
}

// RoomFromModel converts model.Room to its public view
func RoomFromModel(r *model.Room) Room {
	return Room{Summary: rooms.Summarize(r)}
}

// Rooms wraps the room directory
type Rooms struct {
	Rooms []rooms.Summary `json:"rooms"`
}

// Members wraps a room's member list
type Members struct {
	Members []rooms.MemberView `json:"members"`
}

// Messages wraps a room's history
type Messages struct {
	Messages []model.MessageView `json:"messages"`
}

// Mentions wraps an identity's mention rows
type Mentions struct {
	Mentions []*model.Mention `json:"mentions"`
	Unread   int              `json:"unread"`
}

// MarkedRead reports how many mentions were marked read
type MarkedRead struct {
	Marked int `json:"marked"`
}

// Balance reports an identity's event currency
type Balance struct {
	IdentityID string `json:"identity_id"`
	Balance    int    `json:"balance"`
}

// Users wraps the online directory
type Users struct {
	Users []Identity `json:"users"`
}

// Bans wraps a ban list
type Bans struct {
	Bans []*model.Ban `json:"bans"`
}

// Knocks wraps pending knocks
type Knocks struct {
	Knocks []*model.Knock `json:"knocks"`
}

// Spawns wraps claimable spawns
type Spawns struct {
	Spawns []*model.Spawn `json:"spawns"`
}

// MaintenanceResponse reports one run of every maintenance job
type MaintenanceResponse struct {
	Results []maintenance.Result `json:"results"`
}

// Health is the health check body
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
