package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC)

func sampleRoom() *Room {
	return &Room{
		ID:       "r1",
		Capacity: 3,
		Members: []Member{
			{IdentityID: "b", JoinedAt: t0.Add(time.Minute)},
			{IdentityID: "a", JoinedAt: t0, IsHost: true},
		},
	}
}

func TestRoom_HostHelpers(t *testing.T) {
	r := sampleRoom()
	assert.True(t, r.IsHost("a"))
	assert.Equal(t, 1, r.HostCount())

	r.SetHost("b")
	assert.True(t, r.IsHost("b"))
	assert.False(t, r.IsHost("a"))
	assert.Equal(t, 1, r.HostCount())

	r.ClearHost()
	assert.Nil(t, r.GetHost())
}

func TestRoom_EarliestMemberAndRemove(t *testing.T) {
	r := sampleRoom()
	assert.Equal(t, IdentityID("a"), r.EarliestMember().IdentityID)

	m, ok := r.RemoveMember("a")
	assert.True(t, ok)
	assert.True(t, m.IsHost)
	assert.Len(t, r.Members, 1)

	_, ok = r.RemoveMember("a")
	assert.False(t, ok)
}

func TestRoom_AccessKeys(t *testing.T) {
	r := sampleRoom()
	r.GrantAccessKey(AccessKey{IdentityID: "c", ExpiresAt: t0.Add(time.Hour)})
	r.GrantAccessKey(AccessKey{IdentityID: "c", ExpiresAt: t0.Add(2 * time.Hour)})
	assert.Len(t, r.AccessKeys, 1, "granting replaces the previous key")

	assert.True(t, r.ConsumeAccessKey("c", t0))
	assert.False(t, r.ConsumeAccessKey("c", t0), "keys are one-time")

	r.GrantAccessKey(AccessKey{IdentityID: "d", ExpiresAt: t0})
	assert.False(t, r.ConsumeAccessKey("d", t0), "expired key does not grant entry")
	assert.Empty(t, r.AccessKeys)
}

func TestRoom_Mutes(t *testing.T) {
	r := sampleRoom()
	later := t0.Add(time.Hour)
	r.Mutes = []Mute{{IdentityID: "a", ExpiresAt: &later}, {IdentityID: "b"}}

	assert.NotNil(t, r.ActiveMute("a", t0))
	assert.Nil(t, r.ActiveMute("a", later))
	assert.NotNil(t, r.ActiveMute("b", later.Add(24*time.Hour)))

	r.PruneExpired(later)
	assert.Len(t, r.Mutes, 1)
	assert.True(t, r.RemoveMute("b"))
	assert.False(t, r.RemoveMute("b"))
}

func TestRoom_CloneIsDeep(t *testing.T) {
	hue := 10
	r := sampleRoom()
	r.Members[0].Style.AvatarHue = &hue

	c := r.Clone()
	c.Members[0].IsHost = true
	*c.Members[0].Style.AvatarHue = 99

	assert.False(t, r.Members[0].IsHost)
	assert.Equal(t, 10, *r.Members[0].Style.AvatarHue)
}

func TestBanAndKnockExpiry(t *testing.T) {
	past := t0.Add(-time.Minute)
	assert.True(t, (&Ban{}).ActiveAt(t0), "null expiry is permanent")
	assert.False(t, (&Ban{ExpiresAt: &past}).ActiveAt(t0))

	k := &Knock{CreatedAt: t0}
	assert.False(t, k.ExpiredAt(t0.Add(59*time.Minute), time.Hour))
	assert.True(t, k.ExpiredAt(t0.Add(time.Hour), time.Hour))
}

func TestResolveDisplay(t *testing.T) {
	hue := 120
	user := &User{DisplayName: "Alice", Color: ColorRed, AvatarHue: 10, AvatarSaturation: 20}

	d := ResolveDisplay("a", user, nil)
	assert.Equal(t, Display{IdentityID: "a", Name: "Alice", Color: ColorRed, AvatarHue: 10, AvatarSaturation: 20}, d)

	d = ResolveDisplay("a", user, &Member{Style: MemberStyle{Color: ColorCyan, AvatarHue: &hue}})
	assert.Equal(t, ColorCyan, d.Color)
	assert.Equal(t, 120, d.AvatarHue)
	assert.Equal(t, 20, d.AvatarSaturation)

	d = ResolveDisplay("gone", nil, nil)
	assert.Equal(t, DepartedName, d.Name)
}

func TestColorValidation(t *testing.T) {
	for _, c := range ValidColors() {
		assert.True(t, c.IsValid(), c)
	}
	assert.False(t, Color("chartreuse").IsValid())
	assert.ErrorIs(t, ValidateAvatar(361, 0), ErrInvalidAvatar)
	assert.NoError(t, ValidateAvatar(360, 100))
}
