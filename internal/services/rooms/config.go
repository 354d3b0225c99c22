package rooms

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HostPolicy decides what happens to host authority when the host leaves
type HostPolicy string

const (
	// HostReassign promotes the earliest-joined remaining member
	HostReassign HostPolicy = "reassign"
	// HostClear leaves the room without a host until someone claims it
	HostClear HostPolicy = "clear"
)

const (
	// RoomIDLength is the length of generated room ids
	RoomIDLength = 10
	// RoomIDAlphabet avoids characters that are easy to confuse
	RoomIDAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

	MaxDescriptionLength = 280
	MaxBackgroundLength  = 2048

	createAttempts = 8
)

// Config holds configuration for the rooms service
type Config struct {
	DefaultCapacity int
	MaxCapacity     int
	HostOnLeave     HostPolicy
	BcryptCost      int
}

// DefaultConfig returns default room configuration
func DefaultConfig() Config {
	return Config{
		DefaultCapacity: 10,
		MaxCapacity:     30,
		HostOnLeave:     HostReassign,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// Validate checks the capacity bounds and host policy
func (c Config) Validate() error {
	if c.MaxCapacity < 2 {
		return fmt.Errorf("max room capacity must be at least 2, got %d", c.MaxCapacity)
	}
	if c.DefaultCapacity < 2 || c.DefaultCapacity > c.MaxCapacity {
		return fmt.Errorf("default room capacity %d must be between 2 and %d", c.DefaultCapacity, c.MaxCapacity)
	}
	switch c.HostOnLeave {
	case HostReassign, HostClear:
	default:
		return fmt.Errorf("unknown host-on-leave policy %q", c.HostOnLeave)
	}
	return nil
}
