package model

import "time"

// SpawnID identifies an event spawn
type SpawnID string

// SpawnKind is the type of in-room event
type SpawnKind string

const (
	SpawnGhost   SpawnKind = "ghost"
	SpawnPumpkin SpawnKind = "pumpkin"
)

// SpawnState is the lifecycle state of a spawn
type SpawnState string

const (
	SpawnActive  SpawnState = "active"
	SpawnClaimed SpawnState = "claimed"
	SpawnExpired SpawnState = "expired"
)

// Spawn is a timed, claim-once reward
type Spawn struct {
	ID        SpawnID    `json:"id"`
	RoomID    RoomID     `json:"room_id"`
	Kind      SpawnKind  `json:"kind"`
	Phrase    string     `json:"phrase,omitempty"` // ghost hunt only
	Reward    int        `json:"reward"`
	State     SpawnState `json:"state"`
	SpawnedAt time.Time  `json:"spawned_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ClaimedBy IdentityID `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// ClaimableAt reports whether the spawn can still be claimed at now
func (s *Spawn) ClaimableAt(now time.Time) bool {
	return s.State == SpawnActive && now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of the spawn
func (s *Spawn) Clone() *Spawn {
	c := *s
	if s.ClaimedAt != nil {
		t := *s.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}
