package moderation

import (
	"context"
	"errors"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Bans answers ban lookups against the ban table, the only record of bans
type Bans struct {
	storage storage.Storage
	clock   clock.Clock
}

// NewBans creates a ban checker
func NewBans(storage storage.Storage, clock clock.Clock) *Bans {
	return &Bans{storage: storage, clock: clock}
}

// IsBanned reports whether identityID is barred from roomID, checking the site
// ban first. A ban whose expiry has passed never blocks; a ban without expiry
// blocks until removed. Pass model.SiteScope to check only the site ban.
func (b *Bans) IsBanned(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (model.BanState, error) {
	now := b.clock.Now()
	scopes := []model.RoomID{model.SiteScope}
	if roomID != model.SiteScope {
		scopes = append(scopes, roomID)
	}
	for _, scope := range scopes {
		ban, err := b.storage.GetBan(ctx, scope, identityID)
		if errors.Is(err, model.ErrBanNotFound) {
			continue
		}
		if err != nil {
			return model.BanState{}, err
		}
		if ban.ActiveAt(now) {
			return model.BanState{Banned: true, Ban: ban}, nil
		}
	}
	return model.BanState{}, nil
}
