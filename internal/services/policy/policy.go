// Package policy is the single place that decides whether an identity may
// perform a privileged action in a room.
package policy

import (
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// Capability names a privileged action
type Capability string

const (
	ManageHost   Capability = "manage_host"
	Kick         Capability = "kick"
	Ban          Capability = "ban"
	Mute         Capability = "mute"
	EditRoom     Capability = "edit_room"
	DeleteRoom   Capability = "delete_room"
	ResolveKnock Capability = "resolve_knock"
	SiteBan      Capability = "site_ban"
	Announce     Capability = "announce"
	SpawnEvent   Capability = "spawn_event"
	// CreatePermanent allows creating rooms that survive being empty
	CreatePermanent Capability = "create_permanent"
)

// hostCapabilities are granted to the current host of the room
var hostCapabilities = map[Capability]bool{
	ManageHost:   true,
	Kick:         true,
	Ban:          true,
	Mute:         true,
	EditRoom:     true,
	ResolveKnock: true,
}

// Authorize returns nil if actor holds capability for room, model.ErrUnauthenticated for a
// missing actor, and model.ErrForbidden (or model.ErrNotHost for host-only actions)
// otherwise. room may be nil for site-level capabilities.
func Authorize(actor *model.Identity, room *model.Room, capability Capability) error {
	if actor == nil {
		return model.ErrUnauthenticated
	}
	if actor.IsStaff() {
		return nil
	}

	switch {
	case hostCapabilities[capability]:
		if room != nil && room.IsHost(actor.ID) {
			return nil
		}
		return model.ErrNotHost
	case capability == DeleteRoom:
		// Hosts may close their own room unless it is permanent
		if room != nil && !room.Permanent && room.IsHost(actor.ID) {
			return nil
		}
		return model.ErrForbidden
	default:
		return model.ErrForbidden
	}
}

// CanModerate reports whether actor may kick, ban or mute target in room.
// Staff can only be moderated by admins, and nobody can target themselves.
func CanModerate(actor *model.Identity, target *model.User) error {
	if actor.ID == target.ID {
		return model.ErrCannotTargetSelf
	}
	if target.HasRole(model.RoleAdmin) {
		return model.ErrProtectedTarget
	}
	if target.HasRole(model.RoleModerator) && !actor.HasRole(model.RoleAdmin) {
		return model.ErrProtectedTarget
	}
	return nil
}
