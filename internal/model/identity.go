package model

import "time"

// IdentityID is the opaque key of a guest or registered participant
type IdentityID string

// IdentityKind distinguishes guests from registered accounts
type IdentityKind string

const (
	KindGuest      IdentityKind = "guest"
	KindRegistered IdentityKind = "registered"
)

// Role is a site-level role
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Color is one of the enumerated display colors
type Color string

const (
	ColorBlack  Color = "black"
	ColorBlue   Color = "blue"
	ColorCyan   Color = "cyan"
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorRed    Color = "red"
	ColorWhite  Color = "white"
	ColorYellow Color = "yellow"
)

var validColors = map[Color]bool{
	ColorBlack:  true,
	ColorBlue:   true,
	ColorCyan:   true,
	ColorGreen:  true,
	ColorOrange: true,
	ColorPink:   true,
	ColorPurple: true,
	ColorRed:    true,
	ColorWhite:  true,
	ColorYellow: true,
}

// IsValid reports whether the color is in the allowed set
func (c Color) IsValid() bool {
	return validColors[c]
}

// ValidColors returns all allowed colors
func ValidColors() []Color {
	return []Color{
		ColorBlack, ColorBlue, ColorCyan, ColorGreen, ColorOrange,
		ColorPink, ColorPurple, ColorRed, ColorWhite, ColorYellow,
	}
}

// Avatar bounds
const (
	MaxAvatarHue        = 360
	MaxAvatarSaturation = 100
)

// User is an entry in the global users directory
type User struct {
	ID               IdentityID
	Kind             IdentityKind
	DisplayName      string
	Username         string // empty for guests
	Roles            []Role
	Color            Color
	AvatarHue        int
	AvatarSaturation int
	EventCurrency    int
	CreatedAt        time.Time
	LastSeenAt       time.Time
}

// HasRole reports whether the user holds the given role
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user is a moderator or admin
func (u *User) IsStaff() bool {
	return u.HasRole(RoleModerator) || u.HasRole(RoleAdmin)
}

// Credentials holds the password data for a registered account
// Stored separately from User so profile reads never carry the hash
type Credentials struct {
	UserID       IdentityID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the resolved caller of a request
type Identity struct {
	ID               IdentityID
	Kind             IdentityKind
	DisplayName      string
	Username         string
	Roles            []Role
	Color            Color
	AvatarHue        int
	AvatarSaturation int
}

// IdentityFromUser builds an Identity from a directory entry
func IdentityFromUser(u *User) *Identity {
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return &Identity{
		ID:               u.ID,
		Kind:             u.Kind,
		DisplayName:      u.DisplayName,
		Username:         u.Username,
		Roles:            roles,
		Color:            u.Color,
		AvatarHue:        u.AvatarHue,
		AvatarSaturation: u.AvatarSaturation,
	}
}

// HasRole reports whether the identity holds the given role
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the identity is a moderator or admin
func (i *Identity) IsStaff() bool {
	return i.HasRole(RoleModerator) || i.HasRole(RoleAdmin)
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	return &c
}

// ValidateAvatar checks hue and saturation are in range
func ValidateAvatar(hue, saturation int) error {
	if hue < 0 || hue > MaxAvatarHue || saturation < 0 || saturation > MaxAvatarSaturation {
		return ErrInvalidAvatar
	}
	return nil
}
