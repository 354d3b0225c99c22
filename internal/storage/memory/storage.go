package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// All values are copied on the way in and out so callers never share state with the store.
type Storage struct {
	mu sync.RWMutex

	users         map[model.IdentityID]*model.User
	credentials   map[model.IdentityID]*model.Credentials
	usernameIndex map[string]model.IdentityID
	rooms         map[model.RoomID]*model.Room
	messages      map[model.RoomID][]*model.Message
	mentions      map[model.MentionID]*model.Mention
	bans          map[banKey]*model.Ban
	knocks        map[model.KnockID]*model.Knock
	spawns        map[model.SpawnID]*model.Spawn
}

type banKey struct {
	roomID     model.RoomID
	identityID model.IdentityID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:         make(map[model.IdentityID]*model.User),
		credentials:   make(map[model.IdentityID]*model.Credentials),
		usernameIndex: make(map[string]model.IdentityID),
		rooms:         make(map[model.RoomID]*model.Room),
		messages:      make(map[model.RoomID][]*model.Message),
		mentions:      make(map[model.MentionID]*model.Mention),
		bans:          make(map[banKey]*model.Ban),
		knocks:        make(map[model.KnockID]*model.Knock),
		spawns:        make(map[model.SpawnID]*model.Spawn),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user.Clone()
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id model.IdentityID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *Storage) UpdateUser(ctx context.Context, id model.IdentityID, fn storage.UserMutator) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	working := user.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.users[id] = working
	return working.Clone(), nil
}

func (s *Storage) DeleteUser(ctx context.Context, id model.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *Storage) ListUsersSeenSince(ctx context.Context, since time.Time) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.User
	for _, u := range s.users {
		if !u.LastSeenAt.Before(since) {
			result = append(result, u.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayName != result[j].DisplayName {
			return result[i].DisplayName < result[j].DisplayName
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.usernameIndex[creds.Username]; ok && owner != creds.UserID {
		return model.ErrUsernameTaken
	}
	c := *creds
	s.credentials[creds.UserID] = &c
	s.usernameIndex[creds.Username] = creds.UserID
	return nil
}

func (s *Storage) GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameIndex[username]
	if !ok {
		return nil, model.ErrCredentialsNotFound
	}
	creds, ok := s.credentials[id]
	if !ok {
		return nil, model.ErrCredentialsNotFound
	}
	c := *creds
	return &c, nil
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return model.ErrRoomExists
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Storage) ListRooms(ctx context.Context) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutator) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	working := room.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.rooms[id] = working
	return working.Clone(), nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteRoomLocked(id)
	return nil
}

func (s *Storage) DeleteRoomIfEmpty(ctx context.Context, id model.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok || room.Permanent || len(room.Members) > 0 {
		return false, nil
	}
	s.deleteRoomLocked(id)
	return true, nil
}

func (s *Storage) deleteRoomLocked(id model.RoomID) {
	delete(s.rooms, id)
	delete(s.messages, id)
	for mid, m := range s.mentions {
		if m.RoomID == id {
			delete(s.mentions, mid)
		}
	}
	for k := range s.bans {
		if k.roomID == id && id != model.SiteScope {
			delete(s.bans, k)
		}
	}
	for kid, k := range s.knocks {
		if k.RoomID == id {
			delete(s.knocks, kid)
		}
	}
	for sid, sp := range s.spawns {
		if sp.RoomID == id {
			delete(s.spawns, sid)
		}
	}
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message, mentions []*model.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return model.ErrRoomNotFound
	}
	m := *msg
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &m)
	for _, mention := range mentions {
		c := *mention
		s.mentions[mention.ID] = &c
	}
	return nil
}

func (s *Storage) ListMessages(ctx context.Context, roomID model.RoomID) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.messages[roomID]
	result := make([]*model.Message, len(stored))
	for i, m := range stored {
		c := *m
		result[i] = &c
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Storage) DeleteMessagesBefore(ctx context.Context, roomID model.RoomID, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.messages[roomID]
	kept := stored[:0]
	removed := make(map[model.MessageID]bool)
	for _, m := range stored {
		if m.CreatedAt.Before(before) {
			removed[m.ID] = true
			continue
		}
		kept = append(kept, m)
	}
	s.messages[roomID] = kept
	for mid, mention := range s.mentions {
		if removed[mention.MessageID] {
			delete(s.mentions, mid)
		}
	}
	return len(removed), nil
}

func (s *Storage) ListMentions(ctx context.Context, recipient model.IdentityID) ([]*model.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Mention
	for _, m := range s.mentions {
		if m.RecipientID == recipient {
			c := *m
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Storage) MarkMentionsRead(ctx context.Context, recipient model.IdentityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.mentions {
		if m.RecipientID == recipient && !m.Read {
			m.Read = true
			count++
		}
	}
	return count, nil
}

// Ban operations

func (s *Storage) SaveBan(ctx context.Context, ban *model.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[banKey{ban.RoomID, ban.IdentityID}] = ban.Clone()
	return nil
}

func (s *Storage) GetBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (*model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ban, ok := s.bans[banKey{roomID, identityID}]
	if !ok {
		return nil, model.ErrBanNotFound
	}
	return ban.Clone(), nil
}

func (s *Storage) DeleteBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := banKey{roomID, identityID}
	if _, ok := s.bans[key]; !ok {
		return model.ErrBanNotFound
	}
	delete(s.bans, key)
	return nil
}

func (s *Storage) ListBans(ctx context.Context, roomID model.RoomID) ([]*model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Ban
	for k, b := range s.bans {
		if k.roomID == roomID {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].IdentityID < result[j].IdentityID
	})
	return result, nil
}

func (s *Storage) DeleteExpiredBans(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for k, b := range s.bans {
		if !b.ActiveAt(now) {
			delete(s.bans, k)
			count++
		}
	}
	return count, nil
}

// Knock operations

func (s *Storage) SaveKnock(ctx context.Context, knock *model.Knock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if knock.Status == model.KnockPending {
		for _, k := range s.knocks {
			if k.ID != knock.ID && k.RoomID == knock.RoomID && k.IdentityID == knock.IdentityID && k.Status == model.KnockPending {
				return model.ErrKnockPending
			}
		}
	}
	s.knocks[knock.ID] = knock.Clone()
	return nil
}

func (s *Storage) GetKnock(ctx context.Context, id model.KnockID) (*model.Knock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	knock, ok := s.knocks[id]
	if !ok {
		return nil, model.ErrKnockNotFound
	}
	return knock.Clone(), nil
}

func (s *Storage) ListKnocks(ctx context.Context, roomID model.RoomID) ([]*model.Knock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Knock
	for _, k := range s.knocks {
		if k.RoomID == roomID {
			result = append(result, k.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Storage) UpdateKnock(ctx context.Context, id model.KnockID, fn storage.KnockMutator) (*model.Knock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	knock, ok := s.knocks[id]
	if !ok {
		return nil, model.ErrKnockNotFound
	}
	working := knock.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.knocks[id] = working
	return working.Clone(), nil
}

func (s *Storage) DeleteKnocksBefore(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, k := range s.knocks {
		if k.CreatedAt.Before(before) {
			delete(s.knocks, id)
			count++
		}
	}
	return count, nil
}

// Spawn operations

func (s *Storage) CreateSpawn(ctx context.Context, spawn *model.Spawn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[spawn.RoomID]; !ok {
		return model.ErrRoomNotFound
	}
	for _, existing := range s.spawns {
		if existing.RoomID != spawn.RoomID || existing.Kind != spawn.Kind || existing.State != model.SpawnActive {
			continue
		}
		if existing.ClaimableAt(spawn.SpawnedAt) {
			return model.ErrSpawnActive
		}
		existing.State = model.SpawnExpired
	}
	s.spawns[spawn.ID] = spawn.Clone()
	return nil
}

func (s *Storage) GetSpawn(ctx context.Context, id model.SpawnID) (*model.Spawn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spawn, ok := s.spawns[id]
	if !ok {
		return nil, model.ErrSpawnNotFound
	}
	return spawn.Clone(), nil
}

func (s *Storage) ListSpawns(ctx context.Context, roomID model.RoomID) ([]*model.Spawn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Spawn
	for _, sp := range s.spawns {
		if sp.RoomID == roomID {
			result = append(result, sp.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SpawnedAt.Equal(result[j].SpawnedAt) {
			return result[i].SpawnedAt.Before(result[j].SpawnedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Storage) ClaimSpawn(ctx context.Context, id model.SpawnID, claimant model.IdentityID, now time.Time) (*model.Spawn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spawn, ok := s.spawns[id]
	if !ok {
		return nil, model.ErrSpawnNotFound
	}
	if !spawn.ClaimableAt(now) {
		return nil, model.ErrSpawnClaimed
	}
	user, ok := s.users[claimant]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	claimedAt := now
	spawn.State = model.SpawnClaimed
	spawn.ClaimedBy = claimant
	spawn.ClaimedAt = &claimedAt
	user.EventCurrency += spawn.Reward
	return spawn.Clone(), nil
}

func (s *Storage) ExpireSpawns(ctx context.Context, now time.Time) ([]*model.Spawn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*model.Spawn
	for _, sp := range s.spawns {
		if sp.State == model.SpawnActive && !now.Before(sp.ExpiresAt) {
			sp.State = model.SpawnExpired
			expired = append(expired, sp.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}
