package redis

import (
	"fmt"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// Key prefix for all lounge data
const keyPrefix = "lounge"

// Key generation functions for each entity type

// userKey returns the Redis key for a User
func userKey(id model.IdentityID) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}

// usersSeenIndexKey returns the ZSET of user IDs scored by last-seen unix millis
func usersSeenIndexKey() string {
	return fmt.Sprintf("%s:idx:users_seen", keyPrefix)
}

// credentialsKey returns the Redis key for a user's Credentials
func credentialsKey(id model.IdentityID) string {
	return fmt.Sprintf("%s:credentials:%s", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> user_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// roomKey returns the Redis key for a Room
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomsIndexKey returns the SET of all room IDs
func roomsIndexKey() string {
	return fmt.Sprintf("%s:idx:rooms", keyPrefix)
}

// roomMessagesKey returns the ZSET of message IDs in a room scored by creation unix millis
func roomMessagesKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:messages", keyPrefix, id)
}

// messageKey returns the Redis key for a Message
func messageKey(id model.MessageID) string {
	return fmt.Sprintf("%s:message:%s", keyPrefix, id)
}

// messageMentionsKey returns the SET of mention IDs referencing a message
func messageMentionsKey(id model.MessageID) string {
	return fmt.Sprintf("%s:message:%s:mentions", keyPrefix, id)
}

// mentionKey returns the Redis key for a Mention
func mentionKey(id model.MentionID) string {
	return fmt.Sprintf("%s:mention:%s", keyPrefix, id)
}

// userMentionsKey returns the SET of mention IDs addressed to a user
func userMentionsKey(id model.IdentityID) string {
	return fmt.Sprintf("%s:user:%s:mentions", keyPrefix, id)
}

// banScope returns the key segment for a ban scope
func banScope(roomID model.RoomID) string {
	if roomID == model.SiteScope {
		return "site"
	}
	return fmt.Sprintf("room:%s", roomID)
}

// banKey returns the Redis key for a Ban
func banKey(roomID model.RoomID, identityID model.IdentityID) string {
	return fmt.Sprintf("%s:ban:%s:%s", keyPrefix, banScope(roomID), identityID)
}

// scopeBansKey returns the SET of banned identity IDs within a scope
func scopeBansKey(roomID model.RoomID) string {
	return fmt.Sprintf("%s:bans:%s", keyPrefix, banScope(roomID))
}

// bansIndexKey returns the SET of every ban key
func bansIndexKey() string {
	return fmt.Sprintf("%s:idx:bans", keyPrefix)
}

// knockKey returns the Redis key for a Knock
func knockKey(id model.KnockID) string {
	return fmt.Sprintf("%s:knock:%s", keyPrefix, id)
}

// roomKnocksKey returns the SET of knock IDs for a room
func roomKnocksKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:knocks", keyPrefix, id)
}

// knocksIndexKey returns the SET of every knock ID
func knocksIndexKey() string {
	return fmt.Sprintf("%s:idx:knocks", keyPrefix)
}

// spawnKey returns the Redis key for a Spawn
func spawnKey(id model.SpawnID) string {
	return fmt.Sprintf("%s:spawn:%s", keyPrefix, id)
}

// roomSpawnsKey returns the SET of spawn IDs for a room
func roomSpawnsKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:spawns", keyPrefix, id)
}

// activeSpawnsIndexKey returns the SET of spawn IDs still in the active state
func activeSpawnsIndexKey() string {
	return fmt.Sprintf("%s:idx:spawns_active", keyPrefix)
}
