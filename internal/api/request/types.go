package request

// CreateGuestRequest is the request body for entering as a guest
type CreateGuestRequest struct {
	DisplayName string `json:"display_name"`
}

// RegisterRequest is the request body for registering an account
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileRequest carries optional profile changes
type UpdateProfileRequest struct {
	DisplayName      *string `json:"display_name,omitempty"`
	Color            *string `json:"color,omitempty"`
	AvatarHue        *int    `json:"avatar_hue,omitempty"`
	AvatarSaturation *int    `json:"avatar_saturation,omitempty"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Background  string `json:"background,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
	Password    string `json:"password,omitempty"`
	InviteOnly  bool   `json:"invite_only,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
}

// UpdateRoomRequest carries optional room setting changes
type UpdateRoomRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Background  *string `json:"background,omitempty"`
	Capacity    *int    `json:"capacity,omitempty"`
	Password    *string `json:"password,omitempty"`
	InviteOnly  *bool   `json:"invite_only,omitempty"`
	Permanent   *bool   `json:"permanent,omitempty"`
}

// JoinRoomRequest is the optional request body for joining a room
type JoinRoomRequest struct {
	Password string `json:"password,omitempty"`
}

// MemberStyleRequest changes the caller's look inside one room
type MemberStyleRequest struct {
	Color            *string `json:"color,omitempty"`
	AvatarHue        *int    `json:"avatar_hue,omitempty"`
	AvatarSaturation *int    `json:"avatar_saturation,omitempty"`
	Reset            bool    `json:"reset,omitempty"`
}

// TargetRequest names the identity an action applies to
type TargetRequest struct {
	IdentityID string `json:"identity_id"`
}

// BanRequest is the request body for room and site bans. Duration is a Go
// duration string; empty means permanent.
type BanRequest struct {
	IdentityID string `json:"identity_id"`
	Duration   string `json:"duration,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// MuteRequest is the request body for muting a member
type MuteRequest struct {
	IdentityID string `json:"identity_id"`
	Duration   string `json:"duration,omitempty"`
}

// KnockRequest is the optional request body for knocking on a gated room
type KnockRequest struct {
	Message string `json:"message,omitempty"`
}

// ResolveKnockRequest accepts or denies a knock
type ResolveKnockRequest struct {
	Accept bool `json:"accept"`
}

// SendMessageRequest is the request body for posting to a room
type SendMessageRequest struct {
	Body string `json:"body"`
}

// SpawnRequest asks for an event spawn of the given kind
type SpawnRequest struct {
	Kind string `json:"kind"`
}
