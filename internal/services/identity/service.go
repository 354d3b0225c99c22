package identity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// GuestIDPrefix marks identities derived from a source address
const GuestIDPrefix = "g_"

// LastSeenResolution is how stale LastSeenAt may get before a request refreshes it
const LastSeenResolution = time.Minute

// Session represents an authenticated session
type Session struct {
	Token      string
	IdentityID model.IdentityID
	Kind       model.IdentityKind
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Config holds configuration for the identity service
type Config struct {
	// GuestSecret keys the guest id derivation; it must be stable across restarts
	GuestSecret        string
	SessionTTL         time.Duration
	ProfileCacheTTL    time.Duration
	ProfileCacheSize   int
	AdminUsernames     []string
	ModeratorUsernames []string
	// OnlineWindow is how recently an identity must have been seen to be listed online
	OnlineWindow time.Duration
	BcryptCost   int
}

// DefaultConfig returns default identity configuration
func DefaultConfig() Config {
	return Config{
		SessionTTL:       24 * time.Hour,
		ProfileCacheTTL:  30 * time.Second,
		ProfileCacheSize: 4096,
		OnlineWindow:     30 * time.Minute,
		BcryptCost:       bcrypt.DefaultCost,
	}
}

// RoomLeaver removes an identity from every room it is in
type RoomLeaver interface {
	LeaveAll(ctx context.Context, identityID model.IdentityID) error
}

// ProfileUpdate holds optional profile changes; nil fields are left alone
type ProfileUpdate struct {
	DisplayName      *string
	Color            *model.Color
	AvatarHue        *int
	AvatarSaturation *int
}

// Service resolves requests to identities and owns sessions and profiles
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	rooms   RoomLeaver
	logger  *slog.Logger
	cfg     Config
	secret  []byte

	mu       sync.RWMutex
	sessions map[string]*Session

	profiles *expirable.LRU[model.IdentityID, *model.User]
}

// New creates a new identity service. rooms may be nil, in which case logging out
// a guest does not remove it from rooms.
func New(storage storage.Storage, clock clock.Clock, rooms RoomLeaver, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.ProfileCacheSize == 0 {
		cfg.ProfileCacheSize = def.ProfileCacheSize
	}
	if cfg.OnlineWindow == 0 {
		cfg.OnlineWindow = def.OnlineWindow
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	logger = logger.With(slog.String("component", "identity"))

	secret := []byte(cfg.GuestSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		logger.Warn("no guest secret configured; guest identities will change on restart")
	}

	return &Service{
		storage:  storage,
		clock:    clock,
		rooms:    rooms,
		logger:   logger,
		cfg:      cfg,
		secret:   secret,
		sessions: make(map[string]*Session),
		// A zero TTL disables the cache by expiring entries immediately
		profiles: expirable.NewLRU[model.IdentityID, *model.User](cfg.ProfileCacheSize, nil, max(cfg.ProfileCacheTTL, time.Nanosecond)),
	}
}

// GuestID derives the guest identity for a source address. Addresses behind the
// same NAT share an identity.
func (s *Service) GuestID(remoteAddr string) model.IdentityID {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(normalizeAddr(remoteAddr)))
	return model.IdentityID(GuestIDPrefix + hex.EncodeToString(mac.Sum(nil))[:24])
}

func normalizeAddr(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return strings.ToLower(host)
}

// CreateGuest creates or reconnects the guest for remoteAddr and opens a session
func (s *Service) CreateGuest(ctx context.Context, remoteAddr, displayName string) (*Session, *model.User, error) {
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return nil, nil, err
	}

	id := s.GuestID(remoteAddr)
	now := s.clock.Now()

	user, err := s.storage.UpdateUser(ctx, id, func(u *model.User) error {
		u.DisplayName = name
		u.LastSeenAt = now
		return nil
	})
	if errors.Is(err, model.ErrUserNotFound) {
		user = &model.User{
			ID:          id,
			Kind:        model.KindGuest,
			DisplayName: name,
			Roles:       []model.Role{model.RoleUser},
			Color:       model.ColorBlue,
			CreatedAt:   now,
			LastSeenAt:  now,
		}
		err = s.storage.SaveUser(ctx, user)
	}
	if err != nil {
		return nil, nil, err
	}
	s.profiles.Remove(id)

	s.logger.Info("guest session created", slog.String("identity_id", string(id)))
	return s.createSession(user), user, nil
}

// Register creates a registered account and opens a session
func (s *Service) Register(ctx context.Context, username, password, displayName string) (*Session, *model.User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, nil, err
	}
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.storage.GetCredentialsByUsername(ctx, username); err == nil {
		return nil, nil, model.ErrUsernameTaken
	} else if !errors.Is(err, model.ErrCredentialsNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:          model.IdentityID("u_" + uuid.NewString()),
		Kind:        model.KindRegistered,
		DisplayName: name,
		Username:    username,
		Roles:       s.rolesFor(username, []model.Role{model.RoleUser}),
		Color:       model.ColorBlue,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	creds := &model.Credentials{
		UserID:       user.ID,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, nil, err
	}
	if err := s.storage.SaveCredentials(ctx, creds); err != nil {
		// Lost a race for the username; drop the orphaned profile
		_ = s.storage.DeleteUser(ctx, user.ID)
		return nil, nil, err
	}

	s.logger.Info("account registered",
		slog.String("identity_id", string(user.ID)),
		slog.String("username", username))
	return s.createSession(user), user, nil
}

// Login authenticates a registered account and opens a session
func (s *Service) Login(ctx context.Context, username, password string) (*Session, *model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	creds, err := s.storage.GetCredentialsByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrCredentialsNotFound) {
			return nil, nil, model.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.ErrInvalidCredentials
	}

	// Roles granted through configuration are applied on every login
	now := s.clock.Now()
	user, err := s.storage.UpdateUser(ctx, creds.UserID, func(u *model.User) error {
		u.Roles = s.rolesFor(creds.Username, u.Roles)
		u.LastSeenAt = now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.profiles.Remove(user.ID)

	return s.createSession(user), user, nil
}

func (s *Service) rolesFor(username string, roles []model.Role) []model.Role {
	roles = slices.Clone(roles)
	if slices.Contains(s.cfg.AdminUsernames, username) && !slices.Contains(roles, model.RoleAdmin) {
		roles = append(roles, model.RoleAdmin)
	}
	if slices.Contains(s.cfg.ModeratorUsernames, username) && !slices.Contains(roles, model.RoleModerator) {
		roles = append(roles, model.RoleModerator)
	}
	return roles
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	if token == "" {
		return nil, model.ErrUnauthenticated
	}

	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, model.ErrSessionNotFound
	}

	if !s.clock.Now().Before(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, model.ErrSessionExpired
	}

	return session, nil
}

// Resolve maps a session token to the caller's identity. Profile fields come from
// a short-lived cache over the users directory.
func (s *Service) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	session, err := s.ValidateSession(token)
	if err != nil {
		return nil, err
	}

	user, err := s.Profile(ctx, session.IdentityID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			// The identity was removed out from under the session
			s.InvalidateSession(token)
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	if now.Sub(user.LastSeenAt) >= LastSeenResolution {
		updated, err := s.storage.UpdateUser(ctx, user.ID, func(u *model.User) error {
			u.LastSeenAt = now
			return nil
		})
		if err != nil {
			s.logger.Warn("failed to refresh last seen",
				slog.String("identity_id", string(user.ID)),
				slog.Any("error", err))
		} else {
			s.profiles.Add(updated.ID, updated)
			user = updated
		}
	}

	return model.IdentityFromUser(user), nil
}

// Profile returns the directory entry for id through the read-through cache
func (s *Service) Profile(ctx context.Context, id model.IdentityID) (*model.User, error) {
	if user, ok := s.profiles.Get(id); ok {
		return user.Clone(), nil
	}
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.profiles.Add(id, user.Clone())
	return user, nil
}

// UpdateProfile validates and applies a profile change. Invalid input is rejected
// as a whole and the stored profile is left untouched.
func (s *Service) UpdateProfile(ctx context.Context, id model.IdentityID, update ProfileUpdate) (*model.User, error) {
	var name string
	if update.DisplayName != nil {
		n, err := NormalizeDisplayName(*update.DisplayName)
		if err != nil {
			return nil, err
		}
		name = n
	}
	if update.Color != nil && !update.Color.IsValid() {
		return nil, model.ErrInvalidColor
	}

	user, err := s.storage.UpdateUser(ctx, id, func(u *model.User) error {
		hue, sat := u.AvatarHue, u.AvatarSaturation
		if update.AvatarHue != nil {
			hue = *update.AvatarHue
		}
		if update.AvatarSaturation != nil {
			sat = *update.AvatarSaturation
		}
		if err := model.ValidateAvatar(hue, sat); err != nil {
			return err
		}
		if update.DisplayName != nil {
			u.DisplayName = name
		}
		if update.Color != nil {
			u.Color = *update.Color
		}
		u.AvatarHue, u.AvatarSaturation = hue, sat
		return nil
	})
	s.profiles.Remove(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// InvalidateProfile drops id from the profile cache after an out-of-band write
func (s *Service) InvalidateProfile(id model.IdentityID) {
	s.profiles.Remove(id)
}

// ListOnline returns identities seen within the online window
func (s *Service) ListOnline(ctx context.Context) ([]*model.User, error) {
	return s.storage.ListUsersSeenSince(ctx, s.clock.Now().Add(-s.cfg.OnlineWindow))
}

// Logout ends the session. Guests are also removed from their rooms and from the
// users directory, along with any other sessions they hold.
func (s *Service) Logout(ctx context.Context, token string) error {
	session, err := s.ValidateSession(token)
	if err != nil {
		return err
	}
	s.InvalidateSession(token)

	if session.Kind != model.KindGuest {
		return nil
	}

	if s.rooms != nil {
		if err := s.rooms.LeaveAll(ctx, session.IdentityID); err != nil {
			return err
		}
	}
	if err := s.storage.DeleteUser(ctx, session.IdentityID); err != nil && !errors.Is(err, model.ErrUserNotFound) {
		return err
	}
	s.profiles.Remove(session.IdentityID)
	s.invalidateIdentitySessions(session.IdentityID)

	s.logger.Info("guest logged out", slog.String("identity_id", string(session.IdentityID)))
	return nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *Service) invalidateIdentitySessions(id model.IdentityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, session := range s.sessions {
		if session.IdentityID == id {
			delete(s.sessions, token)
		}
	}
}

// createSession creates a new session for a user
func (s *Service) createSession(user *model.User) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:      generateToken("sess_"),
		IdentityID: user.ID,
		Kind:       user.Kind,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// generateToken generates an unguessable token with a prefix
func generateToken(prefix string) string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}

// CleanExpiredSessions removes expired sessions and returns how many were removed
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// SessionCount returns the number of live sessions
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
