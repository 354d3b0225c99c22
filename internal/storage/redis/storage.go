package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Read-modify-write operations run as WATCH/MULTI transactions and are retried on conflict.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client exposes the underlying connection so the event relay can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}

// reader is the subset of commands shared by *redis.Client and *redis.Tx that the decode helpers need
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

func getJSON[T any](ctx context.Context, r reader, key string, notFound error) (*T, error) {
	data, err := r.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, unavailable(err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// mgetJSON fetches and decodes keys, skipping any that vanished since their index was read
func mgetJSON[T any](ctx context.Context, r reader, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := r.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	result := make([]*T, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		result = append(result, &v)
	}
	return result, nil
}

func members(ctx context.Context, r reader, key string) ([]string, error) {
	ids, err := r.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// transact runs fn with keys watched, retrying when another client commits to a watched key first
func (s *Storage) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		called := false
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			called = true
			return fn(tx)
		}, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt%10+1) * time.Millisecond):
			}
			continue
		case !called:
			return unavailable(err)
		default:
			return err
		}
	}
	return fmt.Errorf("%w: transaction retries exhausted", storage.ErrUnavailable)
}

// execTx queues writes in MULTI/EXEC, passing TxFailedErr through so transact can retry
func execTx(ctx context.Context, tx *redis.Tx, fn func(pipe redis.Pipeliner) error) error {
	_, err := tx.TxPipelined(ctx, fn)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return unavailable(err)
	}
	return err
}

func (s *Storage) pipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	if _, err := s.client.TxPipelined(ctx, fn); err != nil {
		return unavailable(err)
	}
	return nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userKey(user.ID), data, 0)
		pipe.ZAdd(ctx, usersSeenIndexKey(), redis.Z{Score: float64(user.LastSeenAt.UnixMilli()), Member: string(user.ID)})
		return nil
	})
}

func (s *Storage) GetUser(ctx context.Context, id model.IdentityID) (*model.User, error) {
	return getJSON[model.User](ctx, s.client, userKey(id), model.ErrUserNotFound)
}

func (s *Storage) UpdateUser(ctx context.Context, id model.IdentityID, fn storage.UserMutator) (*model.User, error) {
	var updated *model.User
	err := s.transact(ctx, func(tx *redis.Tx) error {
		user, err := getJSON[model.User](ctx, tx, userKey(id), model.ErrUserNotFound)
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(id), data, 0)
			pipe.ZAdd(ctx, usersSeenIndexKey(), redis.Z{Score: float64(user.LastSeenAt.UnixMilli()), Member: string(id)})
			return nil
		}); err != nil {
			return err
		}
		updated = user
		return nil
	}, userKey(id))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id model.IdentityID) error {
	return s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userKey(id))
		pipe.ZRem(ctx, usersSeenIndexKey(), string(id))
		return nil
	})
}

func (s *Storage) ListUsersSeenSince(ctx context.Context, since time.Time) ([]*model.User, error) {
	ids, err := s.client.ZRangeByScore(ctx, usersSeenIndexKey(), &redis.ZRangeBy{
		Min: millis(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(model.IdentityID(id))
	}
	users, err := mgetJSON[model.User](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	indexKey := usernameIndexKey(creds.Username)
	return s.transact(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, indexKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return unavailable(err)
		}
		if err == nil && owner != string(creds.UserID) {
			return model.ErrUsernameTaken
		}
		return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, credentialsKey(creds.UserID), data, 0)
			pipe.Set(ctx, indexKey, string(creds.UserID), 0)
			return nil
		})
	}, indexKey)
}

func (s *Storage) GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error) {
	// Look up user ID from username index
	id, err := s.client.Get(ctx, usernameIndexKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCredentialsNotFound
		}
		return nil, unavailable(err)
	}
	return getJSON[model.Credentials](ctx, s.client, credentialsKey(model.IdentityID(id)), model.ErrCredentialsNotFound)
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	key := roomKey(room.ID)
	return s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return unavailable(err)
		}
		if exists > 0 {
			return model.ErrRoomExists
		}
		return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, roomsIndexKey(), string(room.ID))
			return nil
		})
	}, key)
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	return getJSON[model.Room](ctx, s.client, roomKey(id), model.ErrRoomNotFound)
}

func (s *Storage) ListRooms(ctx context.Context) ([]*model.Room, error) {
	ids, err := members(ctx, s.client, roomsIndexKey())
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(model.RoomID(id))
	}
	rooms, err := mgetJSON[model.Room](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutator) (*model.Room, error) {
	var updated *model.Room
	err := s.transact(ctx, func(tx *redis.Tx) error {
		room, err := getJSON[model.Room](ctx, tx, roomKey(id), model.ErrRoomNotFound)
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(id), data, 0)
			return nil
		}); err != nil {
			return err
		}
		updated = room
		return nil
	}, roomKey(id))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func roomCascadeKeys(id model.RoomID) []string {
	return []string{roomKey(id), roomMessagesKey(id), roomKnocksKey(id), roomSpawnsKey(id), scopeBansKey(id)}
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	return s.transact(ctx, func(tx *redis.Tx) error {
		return s.deleteRoomTx(ctx, tx, id)
	}, roomCascadeKeys(id)...)
}

func (s *Storage) DeleteRoomIfEmpty(ctx context.Context, id model.RoomID) (bool, error) {
	deleted := false
	err := s.transact(ctx, func(tx *redis.Tx) error {
		deleted = false
		room, err := getJSON[model.Room](ctx, tx, roomKey(id), model.ErrRoomNotFound)
		if errors.Is(err, model.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if room.Permanent || len(room.Members) > 0 {
			return nil
		}
		if err := s.deleteRoomTx(ctx, tx, id); err != nil {
			return err
		}
		deleted = true
		return nil
	}, roomCascadeKeys(id)...)
	return deleted, err
}

// deleteRoomTx removes a room and every row that references it. The caller watches roomCascadeKeys.
func (s *Storage) deleteRoomTx(ctx context.Context, tx *redis.Tx, id model.RoomID) error {
	msgIDs, err := tx.ZRange(ctx, roomMessagesKey(id), 0, -1).Result()
	if err != nil {
		return unavailable(err)
	}
	mentions, err := mentionsForMessages(ctx, tx, msgIDs)
	if err != nil {
		return err
	}
	knockIDs, err := members(ctx, tx, roomKnocksKey(id))
	if err != nil {
		return err
	}
	spawnIDs, err := members(ctx, tx, roomSpawnsKey(id))
	if err != nil {
		return err
	}
	bannedIDs, err := members(ctx, tx, scopeBansKey(id))
	if err != nil {
		return err
	}

	return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomCascadeKeys(id)...)
		pipe.SRem(ctx, roomsIndexKey(), string(id))
		for _, msgID := range msgIDs {
			pipe.Del(ctx, messageKey(model.MessageID(msgID)), messageMentionsKey(model.MessageID(msgID)))
		}
		for _, m := range mentions {
			pipe.Del(ctx, mentionKey(m.ID))
			pipe.SRem(ctx, userMentionsKey(m.RecipientID), string(m.ID))
		}
		for _, knockID := range knockIDs {
			pipe.Del(ctx, knockKey(model.KnockID(knockID)))
			pipe.SRem(ctx, knocksIndexKey(), knockID)
		}
		for _, spawnID := range spawnIDs {
			pipe.Del(ctx, spawnKey(model.SpawnID(spawnID)))
			pipe.SRem(ctx, activeSpawnsIndexKey(), spawnID)
		}
		for _, identityID := range bannedIDs {
			key := banKey(id, model.IdentityID(identityID))
			pipe.Del(ctx, key)
			pipe.SRem(ctx, bansIndexKey(), key)
		}
		return nil
	})
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message, mentions []*model.Mention) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(mentions))
	for i, m := range mentions {
		if encoded[i], err = json.Marshal(m); err != nil {
			return err
		}
	}

	return s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, roomKey(msg.RoomID)).Result()
		if err != nil {
			return unavailable(err)
		}
		if exists == 0 {
			return model.ErrRoomNotFound
		}
		return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, messageKey(msg.ID), data, 0)
			pipe.ZAdd(ctx, roomMessagesKey(msg.RoomID), redis.Z{Score: float64(msg.CreatedAt.UnixMilli()), Member: string(msg.ID)})
			for i, m := range mentions {
				pipe.Set(ctx, mentionKey(m.ID), encoded[i], 0)
				pipe.SAdd(ctx, messageMentionsKey(msg.ID), string(m.ID))
				pipe.SAdd(ctx, userMentionsKey(m.RecipientID), string(m.ID))
			}
			return nil
		})
	}, roomKey(msg.RoomID))
}

func (s *Storage) ListMessages(ctx context.Context, roomID model.RoomID) ([]*model.Message, error) {
	ids, err := s.client.ZRange(ctx, roomMessagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(model.MessageID(id))
	}
	msgs, err := mgetJSON[model.Message](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

func mentionsForMessages(ctx context.Context, r reader, msgIDs []string) ([]*model.Mention, error) {
	var keys []string
	for _, msgID := range msgIDs {
		ids, err := members(ctx, r, messageMentionsKey(model.MessageID(msgID)))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			keys = append(keys, mentionKey(model.MentionID(id)))
		}
	}
	return mgetJSON[model.Mention](ctx, r, keys)
}

func (s *Storage) DeleteMessagesBefore(ctx context.Context, roomID model.RoomID, before time.Time) (int, error) {
	removed := 0
	err := s.transact(ctx, func(tx *redis.Tx) error {
		removed = 0
		ids, err := tx.ZRangeByScore(ctx, roomMessagesKey(roomID), &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + millis(before),
		}).Result()
		if err != nil {
			return unavailable(err)
		}
		if len(ids) == 0 {
			return nil
		}
		mentions, err := mentionsForMessages(ctx, tx, ids)
		if err != nil {
			return err
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			zmembers := make([]interface{}, len(ids))
			for i, id := range ids {
				zmembers[i] = id
				pipe.Del(ctx, messageKey(model.MessageID(id)), messageMentionsKey(model.MessageID(id)))
			}
			pipe.ZRem(ctx, roomMessagesKey(roomID), zmembers...)
			for _, m := range mentions {
				pipe.Del(ctx, mentionKey(m.ID))
				pipe.SRem(ctx, userMentionsKey(m.RecipientID), string(m.ID))
			}
			return nil
		}); err != nil {
			return err
		}
		removed = len(ids)
		return nil
	}, roomMessagesKey(roomID))
	return removed, err
}

func (s *Storage) ListMentions(ctx context.Context, recipient model.IdentityID) ([]*model.Mention, error) {
	mentions, err := s.loadMentions(ctx, s.client, recipient)
	if err != nil {
		return nil, err
	}
	sort.Slice(mentions, func(i, j int) bool {
		if !mentions[i].CreatedAt.Equal(mentions[j].CreatedAt) {
			return mentions[i].CreatedAt.Before(mentions[j].CreatedAt)
		}
		return mentions[i].ID < mentions[j].ID
	})
	return mentions, nil
}

func (s *Storage) loadMentions(ctx context.Context, r reader, recipient model.IdentityID) ([]*model.Mention, error) {
	ids, err := members(ctx, r, userMentionsKey(recipient))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = mentionKey(model.MentionID(id))
	}
	return mgetJSON[model.Mention](ctx, r, keys)
}

func (s *Storage) MarkMentionsRead(ctx context.Context, recipient model.IdentityID) (int, error) {
	count := 0
	err := s.transact(ctx, func(tx *redis.Tx) error {
		count = 0
		mentions, err := s.loadMentions(ctx, tx, recipient)
		if err != nil {
			return err
		}
		var unread []*model.Mention
		for _, m := range mentions {
			if !m.Read {
				m.Read = true
				unread = append(unread, m)
			}
		}
		if len(unread) == 0 {
			return nil
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			for _, m := range unread {
				data, err := json.Marshal(m)
				if err != nil {
					return err
				}
				pipe.Set(ctx, mentionKey(m.ID), data, 0)
			}
			return nil
		}); err != nil {
			return err
		}
		count = len(unread)
		return nil
	}, userMentionsKey(recipient))
	return count, err
}

// Ban operations

func (s *Storage) SaveBan(ctx context.Context, ban *model.Ban) error {
	data, err := json.Marshal(ban)
	if err != nil {
		return err
	}
	key := banKey(ban.RoomID, ban.IdentityID)
	return s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, scopeBansKey(ban.RoomID), string(ban.IdentityID))
		pipe.SAdd(ctx, bansIndexKey(), key)
		return nil
	})
}

func (s *Storage) GetBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (*model.Ban, error) {
	return getJSON[model.Ban](ctx, s.client, banKey(roomID, identityID), model.ErrBanNotFound)
}

func (s *Storage) DeleteBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	key := banKey(roomID, identityID)
	var del *redis.IntCmd
	if err := s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		pipe.SRem(ctx, scopeBansKey(roomID), string(identityID))
		pipe.SRem(ctx, bansIndexKey(), key)
		return nil
	}); err != nil {
		return err
	}
	if del.Val() == 0 {
		return model.ErrBanNotFound
	}
	return nil
}

func (s *Storage) ListBans(ctx context.Context, roomID model.RoomID) ([]*model.Ban, error) {
	ids, err := members(ctx, s.client, scopeBansKey(roomID))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = banKey(roomID, model.IdentityID(id))
	}
	bans, err := mgetJSON[model.Ban](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(bans, func(i, j int) bool {
		if !bans[i].CreatedAt.Equal(bans[j].CreatedAt) {
			return bans[i].CreatedAt.Before(bans[j].CreatedAt)
		}
		return bans[i].IdentityID < bans[j].IdentityID
	})
	return bans, nil
}

func (s *Storage) DeleteExpiredBans(ctx context.Context, now time.Time) (int, error) {
	keys, err := members(ctx, s.client, bansIndexKey())
	if err != nil {
		return 0, err
	}
	bans, err := mgetJSON[model.Ban](ctx, s.client, keys)
	if err != nil {
		return 0, err
	}
	var expired []*model.Ban
	for _, b := range bans {
		if !b.ActiveAt(now) {
			expired = append(expired, b)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, b := range expired {
			key := banKey(b.RoomID, b.IdentityID)
			pipe.Del(ctx, key)
			pipe.SRem(ctx, scopeBansKey(b.RoomID), string(b.IdentityID))
			pipe.SRem(ctx, bansIndexKey(), key)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// Knock operations

// SaveKnock stores a knock. The room's knock set is watched, so of two
// concurrent pending knocks by one identity only the first commits.
func (s *Storage) SaveKnock(ctx context.Context, knock *model.Knock) error {
	data, err := json.Marshal(knock)
	if err != nil {
		return err
	}
	return s.transact(ctx, func(tx *redis.Tx) error {
		if knock.Status == model.KnockPending {
			ids, err := members(ctx, tx, roomKnocksKey(knock.RoomID))
			if err != nil {
				return err
			}
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = knockKey(model.KnockID(id))
			}
			existing, err := mgetJSON[model.Knock](ctx, tx, keys)
			if err != nil {
				return err
			}
			for _, k := range existing {
				if k.ID != knock.ID && k.IdentityID == knock.IdentityID && k.Status == model.KnockPending {
					return model.ErrKnockPending
				}
			}
		}
		return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, knockKey(knock.ID), data, 0)
			pipe.SAdd(ctx, roomKnocksKey(knock.RoomID), string(knock.ID))
			pipe.SAdd(ctx, knocksIndexKey(), string(knock.ID))
			return nil
		})
	}, roomKnocksKey(knock.RoomID))
}

func (s *Storage) GetKnock(ctx context.Context, id model.KnockID) (*model.Knock, error) {
	return getJSON[model.Knock](ctx, s.client, knockKey(id), model.ErrKnockNotFound)
}

func (s *Storage) ListKnocks(ctx context.Context, roomID model.RoomID) ([]*model.Knock, error) {
	ids, err := members(ctx, s.client, roomKnocksKey(roomID))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = knockKey(model.KnockID(id))
	}
	knocks, err := mgetJSON[model.Knock](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sortKnocks(knocks)
	return knocks, nil
}

func sortKnocks(knocks []*model.Knock) {
	sort.Slice(knocks, func(i, j int) bool {
		if !knocks[i].CreatedAt.Equal(knocks[j].CreatedAt) {
			return knocks[i].CreatedAt.Before(knocks[j].CreatedAt)
		}
		return knocks[i].ID < knocks[j].ID
	})
}

func (s *Storage) UpdateKnock(ctx context.Context, id model.KnockID, fn storage.KnockMutator) (*model.Knock, error) {
	var updated *model.Knock
	err := s.transact(ctx, func(tx *redis.Tx) error {
		knock, err := getJSON[model.Knock](ctx, tx, knockKey(id), model.ErrKnockNotFound)
		if err != nil {
			return err
		}
		if err := fn(knock); err != nil {
			return err
		}
		data, err := json.Marshal(knock)
		if err != nil {
			return err
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, knockKey(id), data, 0)
			return nil
		}); err != nil {
			return err
		}
		updated = knock
		return nil
	}, knockKey(id))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteKnocksBefore(ctx context.Context, before time.Time) (int, error) {
	ids, err := members(ctx, s.client, knocksIndexKey())
	if err != nil {
		return 0, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = knockKey(model.KnockID(id))
	}
	knocks, err := mgetJSON[model.Knock](ctx, s.client, keys)
	if err != nil {
		return 0, err
	}
	var stale []*model.Knock
	for _, k := range knocks {
		if k.CreatedAt.Before(before) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range stale {
			pipe.Del(ctx, knockKey(k.ID))
			pipe.SRem(ctx, roomKnocksKey(k.RoomID), string(k.ID))
			pipe.SRem(ctx, knocksIndexKey(), string(k.ID))
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Spawn operations

func spawnKeys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = spawnKey(model.SpawnID(id))
	}
	return keys
}

func (s *Storage) CreateSpawn(ctx context.Context, spawn *model.Spawn) error {
	data, err := json.Marshal(spawn)
	if err != nil {
		return err
	}
	return s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, roomKey(spawn.RoomID)).Result()
		if err != nil {
			return unavailable(err)
		}
		if exists == 0 {
			return model.ErrRoomNotFound
		}
		ids, err := members(ctx, tx, roomSpawnsKey(spawn.RoomID))
		if err != nil {
			return err
		}
		keys := spawnKeys(ids)
		if len(keys) > 0 {
			if err := tx.Watch(ctx, keys...).Err(); err != nil {
				return unavailable(err)
			}
		}
		existing, err := mgetJSON[model.Spawn](ctx, tx, keys)
		if err != nil {
			return err
		}
		var lapsed []*model.Spawn
		for _, e := range existing {
			if e.Kind != spawn.Kind || e.State != model.SpawnActive {
				continue
			}
			if e.ClaimableAt(spawn.SpawnedAt) {
				return model.ErrSpawnActive
			}
			e.State = model.SpawnExpired
			lapsed = append(lapsed, e)
		}
		return execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			for _, e := range lapsed {
				encoded, err := json.Marshal(e)
				if err != nil {
					return err
				}
				pipe.Set(ctx, spawnKey(e.ID), encoded, 0)
				pipe.SRem(ctx, activeSpawnsIndexKey(), string(e.ID))
			}
			pipe.Set(ctx, spawnKey(spawn.ID), data, 0)
			pipe.SAdd(ctx, roomSpawnsKey(spawn.RoomID), string(spawn.ID))
			if spawn.State == model.SpawnActive {
				pipe.SAdd(ctx, activeSpawnsIndexKey(), string(spawn.ID))
			}
			return nil
		})
	}, roomKey(spawn.RoomID), roomSpawnsKey(spawn.RoomID))
}

func (s *Storage) GetSpawn(ctx context.Context, id model.SpawnID) (*model.Spawn, error) {
	return getJSON[model.Spawn](ctx, s.client, spawnKey(id), model.ErrSpawnNotFound)
}

func (s *Storage) ListSpawns(ctx context.Context, roomID model.RoomID) ([]*model.Spawn, error) {
	ids, err := members(ctx, s.client, roomSpawnsKey(roomID))
	if err != nil {
		return nil, err
	}
	spawns, err := mgetJSON[model.Spawn](ctx, s.client, spawnKeys(ids))
	if err != nil {
		return nil, err
	}
	sort.Slice(spawns, func(i, j int) bool {
		if !spawns[i].SpawnedAt.Equal(spawns[j].SpawnedAt) {
			return spawns[i].SpawnedAt.Before(spawns[j].SpawnedAt)
		}
		return spawns[i].ID < spawns[j].ID
	})
	return spawns, nil
}

func (s *Storage) ClaimSpawn(ctx context.Context, id model.SpawnID, claimant model.IdentityID, now time.Time) (*model.Spawn, error) {
	var claimed *model.Spawn
	err := s.transact(ctx, func(tx *redis.Tx) error {
		spawn, err := getJSON[model.Spawn](ctx, tx, spawnKey(id), model.ErrSpawnNotFound)
		if err != nil {
			return err
		}
		if !spawn.ClaimableAt(now) {
			return model.ErrSpawnClaimed
		}
		if err := tx.Watch(ctx, userKey(claimant)).Err(); err != nil {
			return unavailable(err)
		}
		user, err := getJSON[model.User](ctx, tx, userKey(claimant), model.ErrUserNotFound)
		if err != nil {
			return err
		}

		claimedAt := now
		spawn.State = model.SpawnClaimed
		spawn.ClaimedBy = claimant
		spawn.ClaimedAt = &claimedAt
		user.EventCurrency += spawn.Reward

		spawnData, err := json.Marshal(spawn)
		if err != nil {
			return err
		}
		userData, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, spawnKey(id), spawnData, 0)
			pipe.SRem(ctx, activeSpawnsIndexKey(), string(id))
			pipe.Set(ctx, userKey(claimant), userData, 0)
			return nil
		}); err != nil {
			return err
		}
		claimed = spawn
		return nil
	}, spawnKey(id))
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Storage) ExpireSpawns(ctx context.Context, now time.Time) ([]*model.Spawn, error) {
	var expired []*model.Spawn
	err := s.transact(ctx, func(tx *redis.Tx) error {
		expired = nil
		ids, err := members(ctx, tx, activeSpawnsIndexKey())
		if err != nil {
			return err
		}
		keys := spawnKeys(ids)
		if len(keys) == 0 {
			return nil
		}
		if err := tx.Watch(ctx, keys...).Err(); err != nil {
			return unavailable(err)
		}
		spawns, err := mgetJSON[model.Spawn](ctx, tx, keys)
		if err != nil {
			return err
		}
		var due []*model.Spawn
		for _, sp := range spawns {
			if sp.State == model.SpawnActive && !now.Before(sp.ExpiresAt) {
				sp.State = model.SpawnExpired
				due = append(due, sp)
			}
		}
		if len(due) == 0 {
			return nil
		}
		if err := execTx(ctx, tx, func(pipe redis.Pipeliner) error {
			for _, sp := range due {
				data, err := json.Marshal(sp)
				if err != nil {
					return err
				}
				pipe.Set(ctx, spawnKey(sp.ID), data, 0)
				pipe.SRem(ctx, activeSpawnsIndexKey(), string(sp.ID))
			}
			return nil
		}); err != nil {
			return err
		}
		expired = due
		return nil
	}, activeSpawnsIndexKey())
	if err != nil {
		return nil, err
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}
