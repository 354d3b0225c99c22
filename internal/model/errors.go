package model

import "errors"

// Common errors used across the application
var (
	// Identity errors
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidDisplayName = errors.New("invalid display name")
	ErrInvalidColor       = errors.New("invalid color")
	ErrInvalidAvatar      = errors.New("invalid avatar settings")

	// Auth errors
	ErrUnauthenticated     = errors.New("authentication required")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidUsername     = errors.New("invalid username")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrCredentialsNotFound = errors.New("credentials not found")

	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExists        = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomLocked        = errors.New("room requires a password or an approved knock")
	ErrAlreadyInRoom     = errors.New("identity is already in room")
	ErrNotInRoom         = errors.New("identity is not in room")
	ErrNotHost           = errors.New("identity is not the host")
	ErrHostAlreadySet    = errors.New("room already has a host")
	ErrTargetNotHost     = errors.New("target is not the host")
	ErrInvalidRoomName   = errors.New("invalid room name")
	ErrInvalidCapacity   = errors.New("invalid room capacity")
	ErrInvalidSettings   = errors.New("invalid room settings")
	ErrCapacityBelowSize = errors.New("capacity is below current member count")
	ErrForbidden         = errors.New("insufficient permissions")

	// Moderation errors
	ErrBanned           = errors.New("identity is banned")
	ErrAlreadyBanned    = errors.New("identity is already banned")
	ErrBanNotFound      = errors.New("ban not found")
	ErrMuted            = errors.New("identity is muted in this room")
	ErrKnockNotFound    = errors.New("knock not found")
	ErrKnockPending     = errors.New("a knock is already pending")
	ErrKnockResolved    = errors.New("knock has already been resolved")
	ErrKnockNotNeeded   = errors.New("room does not require a knock")
	ErrCannotTargetSelf = errors.New("cannot target yourself")
	ErrProtectedTarget  = errors.New("target cannot be moderated")

	// Message errors
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body is too long")
	ErrRateLimited    = errors.New("too many messages")

	// Event spawn errors
	ErrSpawnNotFound = errors.New("event spawn not found")
	ErrSpawnActive   = errors.New("an event of this kind is already active")
	ErrSpawnClaimed  = errors.New("event spawn is no longer claimable")
	ErrSpawnKind     = errors.New("event spawn cannot be claimed this way")
)
