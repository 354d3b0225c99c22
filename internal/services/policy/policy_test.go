package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

func testRoom(permanent bool) *model.Room {
	return &model.Room{
		ID:        "r1",
		Permanent: permanent,
		Members: []model.Member{
			{IdentityID: "host", IsHost: true},
			{IdentityID: "member"},
		},
	}
}

func TestAuthorize(t *testing.T) {
	host := &model.Identity{ID: "host", Roles: []model.Role{model.RoleUser}}
	member := &model.Identity{ID: "member", Roles: []model.Role{model.RoleUser}}
	mod := &model.Identity{ID: "mod", Roles: []model.Role{model.RoleModerator}}
	admin := &model.Identity{ID: "admin", Roles: []model.Role{model.RoleAdmin}}

	tests := []struct {
		name       string
		actor      *model.Identity
		permanent  bool
		capability Capability
		want       error
	}{
		{"nil actor", nil, false, Kick, model.ErrUnauthenticated},
		{"host kicks", host, false, Kick, nil},
		{"host manages host", host, false, ManageHost, nil},
		{"host resolves knock", host, false, ResolveKnock, nil},
		{"member kicks", member, false, Kick, model.ErrNotHost},
		{"member edits", member, false, EditRoom, model.ErrNotHost},
		{"moderator overrides", mod, false, ManageHost, nil},
		{"admin overrides", admin, false, Ban, nil},
		{"host deletes own room", host, false, DeleteRoom, nil},
		{"host cannot delete permanent room", host, true, DeleteRoom, model.ErrForbidden},
		{"member cannot delete", member, false, DeleteRoom, model.ErrForbidden},
		{"moderator deletes permanent", mod, true, DeleteRoom, nil},
		{"host cannot site ban", host, false, SiteBan, model.ErrForbidden},
		{"host cannot announce", host, false, Announce, model.ErrForbidden},
		{"host cannot spawn", host, false, SpawnEvent, model.ErrForbidden},
		{"admin spawns", admin, false, SpawnEvent, nil},
		{"member cannot create permanent", member, false, CreatePermanent, model.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, testRoom(tt.permanent), tt.capability)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestAuthorize_NilRoom(t *testing.T) {
	host := &model.Identity{ID: "host"}
	assert.ErrorIs(t, Authorize(host, nil, Kick), model.ErrNotHost)
	assert.ErrorIs(t, Authorize(host, nil, DeleteRoom), model.ErrForbidden)
}

func TestCanModerate(t *testing.T) {
	user := &model.Identity{ID: "u1"}
	mod := &model.Identity{ID: "m1", Roles: []model.Role{model.RoleModerator}}
	admin := &model.Identity{ID: "a1", Roles: []model.Role{model.RoleAdmin}}

	assert.ErrorIs(t, CanModerate(user, &model.User{ID: "u1"}), model.ErrCannotTargetSelf)
	assert.NoError(t, CanModerate(user, &model.User{ID: "u2"}))
	assert.ErrorIs(t, CanModerate(user, &model.User{ID: "m1", Roles: []model.Role{model.RoleModerator}}), model.ErrProtectedTarget)
	assert.ErrorIs(t, CanModerate(mod, &model.User{ID: "a1", Roles: []model.Role{model.RoleAdmin}}), model.ErrProtectedTarget)
	assert.NoError(t, CanModerate(admin, &model.User{ID: "m1", Roles: []model.Role{model.RoleModerator}}))
}
