package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/mocks"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/presence"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/memory"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/testutil"
)

type fakeBans struct {
	mu     sync.Mutex
	banned map[model.RoomID]map[model.IdentityID]bool
	// afterCheck runs once a lookup has answered
	afterCheck func()
}

func (f *fakeBans) ban(room model.RoomID, id model.IdentityID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banned == nil {
		f.banned = map[model.RoomID]map[model.IdentityID]bool{}
	}
	if f.banned[room] == nil {
		f.banned[room] = map[model.IdentityID]bool{}
	}
	f.banned[room][id] = true
}

func (f *fakeBans) IsBanned(_ context.Context, room model.RoomID, id model.IdentityID) (model.BanState, error) {
	f.mu.Lock()
	banned := f.banned[model.SiteScope][id] || f.banned[room][id]
	hook := f.afterCheck
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return model.BanState{Banned: banned}, nil
}

type ServiceSuite struct {
	suite.Suite
	storage   *memory.Storage
	clock     *mocks.MockClock
	publisher *mocks.Publisher
	bans      *fakeBans
	service   *Service
	ctx       context.Context

	alice *model.Identity
	bob   *model.Identity
	carol *model.Identity
	mod   *model.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC))
	s.publisher = mocks.NewPublisher()
	s.bans = &fakeBans{}
	s.service = s.newService(DefaultConfig())

	s.alice = s.identity("alice", "Alice")
	s.bob = s.identity("bob", "Bob")
	s.carol = s.identity("carol", "Carol")
	s.mod = s.identity("mod", "Mod", model.RoleModerator)
}

func (s *ServiceSuite) newService(cfg Config) *Service {
	cfg.BcryptCost = bcrypt.MinCost
	poster := chat.NewPoster(s.storage, s.publisher, s.clock, testutil.NopLogger())
	return New(s.storage, s.bans, poster, s.publisher, presence.NewEvaluator(presence.DefaultConfig()),
		s.clock, mocks.NewMockRandom(), cfg, testutil.NopLogger())
}

func (s *ServiceSuite) identity(id, name string, roles ...model.Role) *model.Identity {
	user := &model.User{
		ID:          model.IdentityID(id),
		Kind:        model.KindGuest,
		DisplayName: name,
		Roles:       append([]model.Role{model.RoleUser}, roles...),
		Color:       model.ColorBlue,
		CreatedAt:   s.clock.Now(),
		LastSeenAt:  s.clock.Now(),
	}
	s.Require().NoError(s.storage.SaveUser(s.ctx, user))
	return model.IdentityFromUser(user)
}

func (s *ServiceSuite) createRoom(settings CreateSettings) *model.Room {
	if settings.Name == "" {
		settings.Name = "Lounge"
	}
	room, err := s.service.CreateRoom(s.ctx, s.alice, settings)
	s.Require().NoError(err)
	return room
}

func (s *ServiceSuite) join(room *model.Room, who ...*model.Identity) {
	for _, id := range who {
		s.clock.Advance(time.Second)
		_, err := s.service.Join(s.ctx, room.ID, id, JoinOptions{})
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) reload(id model.RoomID) *model.Room {
	room, err := s.storage.GetRoom(s.ctx, id)
	s.Require().NoError(err)
	return room
}

func (s *ServiceSuite) messages(id model.RoomID) []string {
	msgs, err := s.storage.ListMessages(s.ctx, id)
	s.Require().NoError(err)
	var bodies []string
	for _, m := range msgs {
		bodies = append(bodies, m.Body)
	}
	return bodies
}

// Create tests

func (s *ServiceSuite) TestCreateRoomMakesCreatorHost() {
	room := s.createRoom(CreateSettings{Name: "  Night Owls  "})

	s.Len(string(room.ID), RoomIDLength)
	s.Equal("Night Owls", room.Name)
	s.Equal(DefaultConfig().DefaultCapacity, room.Capacity)
	s.True(room.IsHost(s.alice.ID))
	s.Contains(s.publisher.Types(realtime.LobbyTopic), model.EventRoomUpdate)
}

func (s *ServiceSuite) TestCreateRoomValidates() {
	_, err := s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: ""})
	s.ErrorIs(err, model.ErrInvalidRoomName)

	_, err = s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "x", Capacity: 1})
	s.ErrorIs(err, model.ErrInvalidCapacity)

	_, err = s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "x", Capacity: 31})
	s.ErrorIs(err, model.ErrInvalidCapacity)

	_, err = s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "x", Permanent: true})
	s.ErrorIs(err, model.ErrForbidden)

	room, err := s.service.CreateRoom(s.ctx, s.mod, CreateSettings{Name: "Hall", Permanent: true})
	s.Require().NoError(err)
	s.True(room.Permanent)
}

func (s *ServiceSuite) TestCreateRoomRetriesOnIDCollision() {
	rnd := mocks.NewMockRandom()
	rnd.QueueString("aaaaaaaaaa", "aaaaaaaaaa", "bbbbbbbbbb")
	s.service.random = rnd

	first := s.createRoom(CreateSettings{})
	second := s.createRoom(CreateSettings{})

	s.Equal(model.RoomID("aaaaaaaaaa"), first.ID)
	s.Equal(model.RoomID("bbbbbbbbbb"), second.ID)
}

func (s *ServiceSuite) TestCreateRoomRejectsSiteBanned() {
	s.bans.ban(model.SiteScope, s.alice.ID)
	_, err := s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "x"})
	s.ErrorIs(err, model.ErrBanned)
}

func (s *ServiceSuite) TestListRoomsHidesSecrets() {
	s.createRoom(CreateSettings{Name: "Secret", Password: "hunter22"})

	rooms, err := s.service.ListRooms(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rooms, 1)
	s.True(rooms[0].HasPassword)
	s.Equal(1, rooms[0].MemberCount)
	s.Equal(s.alice.ID, rooms[0].HostID)
}

// Join tests

func (s *ServiceSuite) TestJoinCapacityTwoRejectsThird() {
	room, err := s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "Pair", Capacity: 2})
	s.Require().NoError(err)

	s.join(room, s.bob)

	_, err = s.service.Join(s.ctx, room.ID, s.carol, JoinOptions{})
	s.ErrorIs(err, model.ErrRoomFull)
	s.Len(s.reload(room.ID).Members, 2)
}

func (s *ServiceSuite) TestJoinTwiceConflicts() {
	room := s.createRoom(CreateSettings{})
	_, err := s.service.Join(s.ctx, room.ID, s.alice, JoinOptions{})
	s.ErrorIs(err, model.ErrAlreadyInRoom)
}

func (s *ServiceSuite) TestJoinChecksBanBeforeAnythingElse() {
	room, _ := s.service.CreateRoom(s.ctx, s.alice, CreateSettings{Name: "Pair", Capacity: 2})
	s.join(room, s.bob)
	s.bans.ban(room.ID, s.carol.ID)

	_, err := s.service.Join(s.ctx, room.ID, s.carol, JoinOptions{})
	s.ErrorIs(err, model.ErrBanned, "ban wins over room full")
}

func (s *ServiceSuite) TestJoinLosesToBanSavedMidJoin() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)
	s.publisher.Reset()

	var once sync.Once
	s.bans.afterCheck = func() {
		once.Do(func() { s.bans.ban(room.ID, s.carol.ID) })
	}

	_, err := s.service.Join(s.ctx, room.ID, s.carol, JoinOptions{})
	s.ErrorIs(err, model.ErrBanned)
	s.Nil(s.reload(room.ID).GetMember(s.carol.ID))
	s.Contains(s.publisher.Evictions(), mocks.Eviction{Topic: realtime.RoomTopic(room.ID), IdentityID: s.carol.ID})
}

func (s *ServiceSuite) TestJoinPasswordGate() {
	room := s.createRoom(CreateSettings{Password: "hunter22"})

	_, err := s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{})
	s.ErrorIs(err, model.ErrRoomLocked)

	_, err = s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{Password: "wrong"})
	s.ErrorIs(err, model.ErrRoomLocked)

	_, err = s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{Password: "hunter22"})
	s.NoError(err)
}

func (s *ServiceSuite) TestJoinStaffBypassesGate() {
	room := s.createRoom(CreateSettings{Password: "hunter22", InviteOnly: true})
	_, err := s.service.Join(s.ctx, room.ID, s.mod, JoinOptions{})
	s.NoError(err)
}

func (s *ServiceSuite) TestJoinAccessKeyIsOneTime() {
	room := s.createRoom(CreateSettings{InviteOnly: true})
	_, err := s.storage.UpdateRoom(s.ctx, room.ID, func(r *model.Room) error {
		r.GrantAccessKey(model.AccessKey{IdentityID: s.bob.ID, GrantedBy: s.alice.ID, ExpiresAt: s.clock.Now().Add(time.Hour)})
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{})
	s.Require().NoError(err)
	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.bob.ID))

	_, err = s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{})
	s.ErrorIs(err, model.ErrRoomLocked)
}

func (s *ServiceSuite) TestJoinExpiredAccessKeyRejected() {
	room := s.createRoom(CreateSettings{InviteOnly: true})
	_, _ = s.storage.UpdateRoom(s.ctx, room.ID, func(r *model.Room) error {
		r.GrantAccessKey(model.AccessKey{IdentityID: s.bob.ID, ExpiresAt: s.clock.Now().Add(time.Minute)})
		return nil
	})
	s.clock.Advance(2 * time.Minute)

	_, err := s.service.Join(s.ctx, room.ID, s.bob, JoinOptions{})
	s.ErrorIs(err, model.ErrRoomLocked)
}

func (s *ServiceSuite) TestJoinHostlessRoomMakesJoinerHost() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)
	_, err := s.service.RevokeHost(s.ctx, room.ID, s.alice, s.alice.ID)
	s.Require().NoError(err)

	s.join(room, s.carol)
	s.True(s.reload(room.ID).IsHost(s.carol.ID))
}

func (s *ServiceSuite) TestJoinPublishesAndPostsNotice() {
	room := s.createRoom(CreateSettings{})
	s.publisher.Reset()
	s.join(room, s.bob)

	events := s.publisher.Events(realtime.RoomTopic(room.ID))
	s.Require().NotEmpty(events)
	s.Equal(model.EventUserUpdate, events[0].Type)
	payload := events[0].Payload.(model.UserUpdatePayload)
	s.Equal(model.ReasonJoined, payload.Reason)
	s.Equal(s.bob.ID, payload.IdentityID)
	s.Contains(s.messages(room.ID), "Bob entered the room")
}

// Leave tests

func (s *ServiceSuite) TestLeaveReassignsHostToEarliestMember() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.carol)

	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.alice.ID))

	r := s.reload(room.ID)
	s.Len(r.Members, 2)
	s.Equal(1, r.HostCount())
	s.True(r.IsHost(s.bob.ID))
	s.Contains(s.messages(room.ID), "Bob is now the host")
}

func (s *ServiceSuite) TestLeaveWithClearPolicyLeavesHostless() {
	cfg := DefaultConfig()
	cfg.HostOnLeave = HostClear
	s.service = s.newService(cfg)

	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)
	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.alice.ID))

	r := s.reload(room.ID)
	s.Len(r.Members, 1)
	s.Equal(0, r.HostCount())

	_, err := s.service.ClaimHost(s.ctx, room.ID, s.bob)
	s.Require().NoError(err)
	s.True(s.reload(room.ID).IsHost(s.bob.ID))
}

func (s *ServiceSuite) TestLeaveNonMemberFails() {
	room := s.createRoom(CreateSettings{})
	s.ErrorIs(s.service.Leave(s.ctx, room.ID, s.bob.ID), model.ErrNotInRoom)
}

func (s *ServiceSuite) TestLeaveLastMemberDeletesRoom() {
	room := s.createRoom(CreateSettings{})
	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.alice.ID))

	_, err := s.storage.GetRoom(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *ServiceSuite) TestLeaveLastMemberKeepsPermanentRoom() {
	room, err := s.service.CreateRoom(s.ctx, s.mod, CreateSettings{Name: "Hall", Permanent: true})
	s.Require().NoError(err)
	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.mod.ID))

	s.Empty(s.reload(room.ID).Members)
}

func (s *ServiceSuite) TestDisconnectIsIdempotent() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)

	removed, err := s.service.Disconnect(s.ctx, room.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.service.Disconnect(s.ctx, room.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(removed)

	removed, err = s.service.Disconnect(s.ctx, "missing", s.bob.ID)
	s.Require().NoError(err)
	s.False(removed)
}

func (s *ServiceSuite) TestDisconnectIdleRechecksActivity() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)

	removed, err := s.service.DisconnectIdle(s.ctx, room.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(removed, "active member stays")

	s.clock.Advance(31 * time.Minute)
	s.Require().NoError(s.service.Heartbeat(s.ctx, room.ID, s.alice.ID))

	removed, err = s.service.DisconnectIdle(s.ctx, room.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.service.DisconnectIdle(s.ctx, room.ID, s.alice.ID)
	s.Require().NoError(err)
	s.False(removed, "heartbeat reset the idle timer")
}

func (s *ServiceSuite) TestLeaveAll() {
	r1 := s.createRoom(CreateSettings{Name: "One"})
	r2 := s.createRoom(CreateSettings{Name: "Two"})
	s.join(r1, s.bob)
	s.join(r2, s.bob)

	s.Require().NoError(s.service.LeaveAll(s.ctx, s.bob.ID))

	s.Nil(s.reload(r1.ID).GetMember(s.bob.ID))
	s.Nil(s.reload(r2.ID).GetMember(s.bob.ID))
}

// Host tests

func (s *ServiceSuite) TestPassHostByNonHostIsUnauthorizedAndUnchanged() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.carol)

	_, err := s.service.PassHost(s.ctx, room.ID, s.bob, s.carol.ID)
	s.ErrorIs(err, model.ErrNotHost)

	r := s.reload(room.ID)
	s.True(r.IsHost(s.alice.ID))
	s.Equal(1, r.HostCount())
}

func (s *ServiceSuite) TestPassHostMovesAuthority() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)

	_, err := s.service.PassHost(s.ctx, room.ID, s.alice, s.bob.ID)
	s.Require().NoError(err)

	r := s.reload(room.ID)
	s.True(r.IsHost(s.bob.ID))
	s.False(r.IsHost(s.alice.ID))

	_, err = s.service.PassHost(s.ctx, room.ID, s.bob, s.bob.ID)
	s.ErrorIs(err, model.ErrCannotTargetSelf)
	_, err = s.service.PassHost(s.ctx, room.ID, s.bob, s.carol.ID)
	s.ErrorIs(err, model.ErrNotInRoom)
}

func (s *ServiceSuite) TestGrantAndRevokeHost() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.mod)

	_, err := s.service.GrantHost(s.ctx, room.ID, s.bob, s.bob.ID)
	s.ErrorIs(err, model.ErrNotHost)

	_, err = s.service.GrantHost(s.ctx, room.ID, s.mod, s.bob.ID)
	s.Require().NoError(err, "staff override")
	s.True(s.reload(room.ID).IsHost(s.bob.ID))

	_, err = s.service.RevokeHost(s.ctx, room.ID, s.mod, s.alice.ID)
	s.ErrorIs(err, model.ErrTargetNotHost)

	_, err = s.service.RevokeHost(s.ctx, room.ID, s.bob, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(0, s.reload(room.ID).HostCount())

	_, err = s.service.ClaimHost(s.ctx, room.ID, s.carol)
	s.ErrorIs(err, model.ErrNotInRoom)
}

func (s *ServiceSuite) TestClaimHostWhenHostPresentConflicts() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)

	_, err := s.service.ClaimHost(s.ctx, room.ID, s.bob)
	s.ErrorIs(err, model.ErrHostAlreadySet)
}

func (s *ServiceSuite) TestConcurrentHostChangesNeverProduceTwoHosts() {
	room := s.createRoom(CreateSettings{})
	members := []*model.Identity{s.bob, s.carol, s.mod}
	for i := 0; i < 5; i++ {
		members = append(members, s.identity(fmt.Sprintf("guest%d", i), fmt.Sprintf("Guest %d", i)))
	}
	s.join(room, members...)
	everyone := append([]*model.Identity{s.alice}, members...)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := everyone[i%len(everyone)]
			target := everyone[(i*3+1)%len(everyone)]
			switch i % 5 {
			case 0:
				_, _ = s.service.PassHost(s.ctx, room.ID, actor, target.ID)
			case 1:
				_, _ = s.service.GrantHost(s.ctx, room.ID, s.mod, target.ID)
			case 2:
				_, _ = s.service.RevokeHost(s.ctx, room.ID, s.mod, target.ID)
			case 3:
				_, _ = s.service.ClaimHost(s.ctx, room.ID, actor)
			case 4:
				if target != s.mod {
					_ = s.service.Leave(s.ctx, room.ID, target.ID)
				}
			}
		}(i)
	}
	wg.Wait()

	r := s.reload(room.ID)
	s.LessOrEqual(r.HostCount(), 1)
}

// Kick tests

func (s *ServiceSuite) TestKickRequiresHostAndRespectsStaff() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.mod)

	s.ErrorIs(s.service.Kick(s.ctx, room.ID, s.bob, s.alice.ID), model.ErrNotHost)
	s.ErrorIs(s.service.Kick(s.ctx, room.ID, s.alice, s.mod.ID), model.ErrProtectedTarget)
	s.ErrorIs(s.service.Kick(s.ctx, room.ID, s.alice, s.alice.ID), model.ErrCannotTargetSelf)

	s.publisher.Reset()
	s.Require().NoError(s.service.Kick(s.ctx, room.ID, s.alice, s.bob.ID))
	s.Nil(s.reload(room.ID).GetMember(s.bob.ID))
	s.Contains(s.messages(room.ID), "Bob was kicked")
	s.Equal([]mocks.Eviction{{Topic: realtime.RoomTopic(room.ID), IdentityID: s.bob.ID}}, s.publisher.Evictions())
}

func (s *ServiceSuite) TestRemovalEndsOnlyThatMembersStreams() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.carol)
	s.publisher.Reset()

	s.Require().NoError(s.service.Leave(s.ctx, room.ID, s.bob.ID))
	removed, err := s.service.Disconnect(s.ctx, room.ID, s.carol.ID)
	s.Require().NoError(err)
	s.True(removed)

	s.Equal([]mocks.Eviction{
		{Topic: realtime.RoomTopic(room.ID), IdentityID: s.bob.ID},
		{Topic: realtime.RoomTopic(room.ID), IdentityID: s.carol.ID},
	}, s.publisher.Evictions())

	// A no-op disconnect evicts nothing
	s.publisher.Reset()
	_, err = s.service.Disconnect(s.ctx, room.ID, s.carol.ID)
	s.Require().NoError(err)
	s.Empty(s.publisher.Evictions())
}

// Settings tests

func (s *ServiceSuite) TestUpdateSettings() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob, s.carol)

	name := "Renamed"
	_, err := s.service.UpdateSettings(s.ctx, room.ID, s.bob, SettingsUpdate{Name: &name})
	s.ErrorIs(err, model.ErrNotHost)

	capacity := 2
	_, err = s.service.UpdateSettings(s.ctx, room.ID, s.alice, SettingsUpdate{Capacity: &capacity})
	s.ErrorIs(err, model.ErrCapacityBelowSize)

	password := "letmein1"
	updated, err := s.service.UpdateSettings(s.ctx, room.ID, s.alice, SettingsUpdate{Name: &name, Password: &password})
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)
	s.True(updated.HasPassword())

	permanent := true
	_, err = s.service.UpdateSettings(s.ctx, room.ID, s.alice, SettingsUpdate{Permanent: &permanent})
	s.ErrorIs(err, model.ErrForbidden)

	cleared := ""
	updated, err = s.service.UpdateSettings(s.ctx, room.ID, s.alice, SettingsUpdate{Password: &cleared})
	s.Require().NoError(err)
	s.False(updated.HasPassword())
}

func (s *ServiceSuite) TestDeleteRoom() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)

	s.ErrorIs(s.service.DeleteRoom(s.ctx, room.ID, s.bob), model.ErrForbidden)
	s.Require().NoError(s.service.DeleteRoom(s.ctx, room.ID, s.alice))

	_, err := s.storage.GetRoom(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
	s.Contains(s.publisher.Types(realtime.RoomTopic(room.ID)), model.EventRoomUpdate)
}

// Style and member view tests

func (s *ServiceSuite) TestMemberStyleOverridesProfile() {
	room := s.createRoom(CreateSettings{})
	red := model.ColorRed
	hue := 300

	_, err := s.service.UpdateMemberStyle(s.ctx, room.ID, s.alice.ID, StyleUpdate{Color: &red, AvatarHue: &hue})
	s.Require().NoError(err)

	members, err := s.service.Members(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal(model.ColorRed, members[0].Color)
	s.Equal(300, members[0].AvatarHue)
	s.Equal("Alice", members[0].Name)
	s.True(members[0].IsHost)
	s.Equal(presence.StateActive, members[0].State)

	_, err = s.service.UpdateMemberStyle(s.ctx, room.ID, s.alice.ID, StyleUpdate{Reset: true})
	s.Require().NoError(err)
	members, _ = s.service.Members(s.ctx, room.ID)
	s.Equal(model.ColorBlue, members[0].Color)
}

func (s *ServiceSuite) TestMemberStyleRejectsInvalidColor() {
	room := s.createRoom(CreateSettings{})
	bad := model.Color("chartreuse")

	_, err := s.service.UpdateMemberStyle(s.ctx, room.ID, s.alice.ID, StyleUpdate{Color: &bad})
	s.ErrorIs(err, model.ErrInvalidColor)
	s.Empty(s.reload(room.ID).GetMember(s.alice.ID).Style.Color)
}

func (s *ServiceSuite) TestMembersReportPresence() {
	room := s.createRoom(CreateSettings{})
	s.join(room, s.bob)
	s.clock.Advance(15 * time.Minute)
	s.Require().NoError(s.service.Heartbeat(s.ctx, room.ID, s.bob.ID))

	members, err := s.service.Members(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Require().Len(members, 2)
	s.Equal(presence.StateAFK, members[0].State)
	s.Equal(presence.StateActive, members[1].State)

	s.ErrorIs(s.service.Heartbeat(s.ctx, room.ID, s.carol.ID), model.ErrNotInRoom)
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.HostOnLeave = "shrug"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown host policy")
	}
	cfg = DefaultConfig()
	cfg.DefaultCapacity = 50
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for default above max")
	}
}
