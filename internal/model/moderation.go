package model

import "time"

// SiteScope is the RoomID used for site-wide bans
const SiteScope RoomID = ""

// Ban blocks an identity from a room, or from the site when RoomID is SiteScope.
// A nil ExpiresAt is permanent.
type Ban struct {
	RoomID     RoomID     `json:"room_id,omitempty"`
	IdentityID IdentityID `json:"identity_id"`
	BannedBy   IdentityID `json:"banned_by"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the ban blocks entry at the given instant
func (b *Ban) ActiveAt(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// IsSiteWide reports whether the ban applies to every room
func (b *Ban) IsSiteWide() bool {
	return b.RoomID == SiteScope
}

// BanState is the result of a ban lookup
type BanState struct {
	Banned bool
	Ban    *Ban // the blocking ban when Banned is true
}

// KnockID identifies a knock request
type KnockID string

// KnockStatus is the resolution state of a knock
type KnockStatus string

const (
	KnockPending  KnockStatus = "pending"
	KnockAccepted KnockStatus = "accepted"
	KnockDenied   KnockStatus = "denied"
	// KnockExpired marks a pending knock retired once its window passed
	KnockExpired KnockStatus = "expired"
)

// Knock is a request from a non-member to enter a gated room
type Knock struct {
	ID          KnockID     `json:"id"`
	RoomID      RoomID      `json:"room_id"`
	IdentityID  IdentityID  `json:"identity_id"`
	DisplayName string      `json:"display_name"`
	Message     string      `json:"message,omitempty"`
	Status      KnockStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy  IdentityID  `json:"resolved_by,omitempty"`
}

// ExpiredAt reports whether the knock is older than the window at now
func (k *Knock) ExpiredAt(now time.Time, window time.Duration) bool {
	return !now.Before(k.CreatedAt.Add(window))
}

// Clone returns a deep copy of the ban
func (b *Ban) Clone() *Ban {
	c := *b
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Clone returns a deep copy of the knock
func (k *Knock) Clone() *Knock {
	c := *k
	if k.ResolvedAt != nil {
		t := *k.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
