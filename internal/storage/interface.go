package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// ErrUnavailable wraps backend connectivity failures so callers can report them as transient
var ErrUnavailable = errors.New("storage unavailable")

// Mutators passed to the Update* operations run inside the backend's atomic section.
// Returning an error aborts the update and leaves the stored value unchanged.
// Mutators may run more than once on optimistic backends and must not have side effects.
type (
	UserMutator  func(u *model.User) error
	RoomMutator  func(r *model.Room) error
	KnockMutator func(k *model.Knock) error
)

// Storage defines the interface for data persistence
type Storage interface {
	// User directory operations
	SaveUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id model.IdentityID) (*model.User, error)
	UpdateUser(ctx context.Context, id model.IdentityID, fn UserMutator) (*model.User, error)
	DeleteUser(ctx context.Context, id model.IdentityID) error
	ListUsersSeenSince(ctx context.Context, since time.Time) ([]*model.User, error)

	// Credential operations. SaveCredentials fails with ErrUsernameTaken on a duplicate username.
	SaveCredentials(ctx context.Context, creds *model.Credentials) error
	GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error)

	// Room operations
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	ListRooms(ctx context.Context) ([]*model.Room, error)
	UpdateRoom(ctx context.Context, id model.RoomID, fn RoomMutator) (*model.Room, error)
	// DeleteRoom removes the room with its messages, mentions, knocks, bans and spawns
	DeleteRoom(ctx context.Context, id model.RoomID) error
	// DeleteRoomIfEmpty deletes a non-permanent room only if it has no members at commit time
	DeleteRoomIfEmpty(ctx context.Context, id model.RoomID) (bool, error)

	// Message operations
	AppendMessage(ctx context.Context, msg *model.Message, mentions []*model.Mention) error
	ListMessages(ctx context.Context, roomID model.RoomID) ([]*model.Message, error)
	// DeleteMessagesBefore removes messages created before the cutoff and their mention rows
	DeleteMessagesBefore(ctx context.Context, roomID model.RoomID, before time.Time) (int, error)
	ListMentions(ctx context.Context, recipient model.IdentityID) ([]*model.Mention, error)
	MarkMentionsRead(ctx context.Context, recipient model.IdentityID) (int, error)

	// Ban operations. RoomID model.SiteScope addresses site-wide bans.
	SaveBan(ctx context.Context, ban *model.Ban) error
	GetBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (*model.Ban, error)
	DeleteBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error
	ListBans(ctx context.Context, roomID model.RoomID) ([]*model.Ban, error)
	DeleteExpiredBans(ctx context.Context, now time.Time) (int, error)

	// Knock operations
	SaveKnock(ctx context.Context, knock *model.Knock) error
	GetKnock(ctx context.Context, id model.KnockID) (*model.Knock, error)
	ListKnocks(ctx context.Context, roomID model.RoomID) ([]*model.Knock, error)
	UpdateKnock(ctx context.Context, id model.KnockID, fn KnockMutator) (*model.Knock, error)
	DeleteKnocksBefore(ctx context.Context, before time.Time) (int, error)

	// Spawn operations
	// CreateSpawn fails with ErrSpawnActive when the room already has a claimable spawn of the same kind
	CreateSpawn(ctx context.Context, spawn *model.Spawn) error
	GetSpawn(ctx context.Context, id model.SpawnID) (*model.Spawn, error)
	ListSpawns(ctx context.Context, roomID model.RoomID) ([]*model.Spawn, error)
	// ClaimSpawn marks an active, unexpired spawn claimed and credits its reward to the
	// claimant in one atomic step. Fails with ErrSpawnClaimed if it is no longer claimable.
	ClaimSpawn(ctx context.Context, id model.SpawnID, claimant model.IdentityID, now time.Time) (*model.Spawn, error)
	// ExpireSpawns moves active spawns past their expiry to expired and returns them
	ExpireSpawns(ctx context.Context, now time.Time) ([]*model.Spawn, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
	Close() error
}
