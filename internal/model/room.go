package model

import (
	"sort"
	"time"
)

// RoomID identifies a room
type RoomID string

// Room capacity bounds
const (
	MinRoomCapacity   = 2
	MaxRoomNameLength = 50
)

// MemberStyle holds per-room cosmetic overrides; zero values mean "use profile"
type MemberStyle struct {
	Color            Color `json:",omitempty"`
	AvatarHue        *int  `json:",omitempty"`
	AvatarSaturation *int  `json:",omitempty"`
}

// Member is a membership row: one identity present in one room
type Member struct {
	IdentityID   IdentityID
	IsHost       bool
	JoinedAt     time.Time
	LastActivity time.Time
	MessageCount int
	Style        MemberStyle
}

// AccessKey is a one-time, time-limited entry grant for a single identity
type AccessKey struct {
	IdentityID IdentityID
	GrantedBy  IdentityID
	ExpiresAt  time.Time
}

// Mute silences an identity inside a room; nil ExpiresAt is permanent
type Mute struct {
	IdentityID IdentityID
	MutedBy    IdentityID
	ExpiresAt  *time.Time
}

// Room is the room aggregate: metadata, membership and room-local grants
type Room struct {
	ID           RoomID
	Name         string
	Description  string
	Background   string
	Capacity     int
	PasswordHash string
	InviteOnly   bool // entry only through an approved knock
	Permanent    bool
	CreatedBy    IdentityID
	Members      []Member
	AccessKeys   []AccessKey
	Mutes        []Mute
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the room is password protected
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// IsGated reports whether entry needs a password or an approved knock
func (r *Room) IsGated() bool {
	return r.HasPassword() || r.InviteOnly
}

// IsFull reports whether the room is at capacity
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.Capacity
}

// GetHost returns the current host member, or nil if none
func (r *Room) GetHost() *Member {
	for i := range r.Members {
		if r.Members[i].IsHost {
			return &r.Members[i]
		}
	}
	return nil
}

// HostCount returns the number of members flagged as host
func (r *Room) HostCount() int {
	count := 0
	for _, m := range r.Members {
		if m.IsHost {
			count++
		}
	}
	return count
}

// GetMember returns the member with the given identity, or nil if not found
func (r *Room) GetMember(id IdentityID) *Member {
	for i := range r.Members {
		if r.Members[i].IdentityID == id {
			return &r.Members[i]
		}
	}
	return nil
}

// IsHost reports whether the identity currently holds host in this room
func (r *Room) IsHost(id IdentityID) bool {
	m := r.GetMember(id)
	return m != nil && m.IsHost
}

// SetHost makes id the only host. The caller must ensure id is a member.
func (r *Room) SetHost(id IdentityID) {
	for i := range r.Members {
		r.Members[i].IsHost = r.Members[i].IdentityID == id
	}
}

// ClearHost removes host from every member
func (r *Room) ClearHost() {
	for i := range r.Members {
		r.Members[i].IsHost = false
	}
}

// RemoveMember deletes the membership row for id and returns it
func (r *Room) RemoveMember(id IdentityID) (Member, bool) {
	for i, m := range r.Members {
		if m.IdentityID == id {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return m, true
		}
	}
	return Member{}, false
}

// EarliestMember returns the member who joined first, or nil if empty
func (r *Room) EarliestMember() *Member {
	if len(r.Members) == 0 {
		return nil
	}
	idx := 0
	for i := range r.Members {
		if r.Members[i].JoinedAt.Before(r.Members[idx].JoinedAt) {
			idx = i
		}
	}
	return &r.Members[idx]
}

// ActiveMute returns the mute for id that is in effect at now, or nil
func (r *Room) ActiveMute(id IdentityID, now time.Time) *Mute {
	for i := range r.Mutes {
		m := &r.Mutes[i]
		if m.IdentityID != id {
			continue
		}
		if m.ExpiresAt == nil || m.ExpiresAt.After(now) {
			return m
		}
	}
	return nil
}

// RemoveMute deletes any mute for id and reports whether one existed
func (r *Room) RemoveMute(id IdentityID) bool {
	kept := r.Mutes[:0]
	removed := false
	for _, m := range r.Mutes {
		if m.IdentityID == id {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	r.Mutes = kept
	return removed
}

// GrantAccessKey replaces any key held by the identity
func (r *Room) GrantAccessKey(key AccessKey) {
	r.RevokeAccessKey(key.IdentityID)
	r.AccessKeys = append(r.AccessKeys, key)
}

// RevokeAccessKey deletes the key held by id
func (r *Room) RevokeAccessKey(id IdentityID) {
	kept := r.AccessKeys[:0]
	for _, k := range r.AccessKeys {
		if k.IdentityID != id {
			kept = append(kept, k)
		}
	}
	r.AccessKeys = kept
}

// ConsumeAccessKey removes a valid key for id and reports whether one was found.
// Expired keys are dropped without granting entry.
func (r *Room) ConsumeAccessKey(id IdentityID, now time.Time) bool {
	valid := false
	kept := r.AccessKeys[:0]
	for _, k := range r.AccessKeys {
		if k.IdentityID == id {
			if k.ExpiresAt.After(now) {
				valid = true
			}
			continue
		}
		kept = append(kept, k)
	}
	r.AccessKeys = kept
	return valid
}

// PruneExpired drops expired access keys and mutes
func (r *Room) PruneExpired(now time.Time) {
	keys := r.AccessKeys[:0]
	for _, k := range r.AccessKeys {
		if k.ExpiresAt.After(now) {
			keys = append(keys, k)
		}
	}
	r.AccessKeys = keys

	mutes := r.Mutes[:0]
	for _, m := range r.Mutes {
		if m.ExpiresAt == nil || m.ExpiresAt.After(now) {
			mutes = append(mutes, m)
		}
	}
	r.Mutes = mutes
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	c := *r
	c.Members = make([]Member, len(r.Members))
	for i, m := range r.Members {
		c.Members[i] = m
		c.Members[i].Style = m.Style.clone()
	}
	c.AccessKeys = append([]AccessKey(nil), r.AccessKeys...)
	c.Mutes = make([]Mute, len(r.Mutes))
	for i, m := range r.Mutes {
		c.Mutes[i] = m
		if m.ExpiresAt != nil {
			t := *m.ExpiresAt
			c.Mutes[i].ExpiresAt = &t
		}
	}
	return &c
}

// SortMembers orders members by join time
func (r *Room) SortMembers() {
	sort.SliceStable(r.Members, func(i, j int) bool {
		return r.Members[i].JoinedAt.Before(r.Members[j].JoinedAt)
	})
}

func (s MemberStyle) clone() MemberStyle {
	c := MemberStyle{Color: s.Color}
	if s.AvatarHue != nil {
		v := *s.AvatarHue
		c.AvatarHue = &v
	}
	if s.AvatarSaturation != nil {
		v := *s.AvatarSaturation
		c.AvatarSaturation = &v
	}
	return c
}
