package model

// DepartedName is shown for senders whose identity no longer exists
const DepartedName = "(departed)"

// Display is the rendering metadata of an identity as seen in a room
type Display struct {
	IdentityID       IdentityID `json:"identity_id,omitempty"`
	Name             string     `json:"name"`
	Color            Color      `json:"color"`
	AvatarHue        int        `json:"avatar_hue"`
	AvatarSaturation int        `json:"avatar_saturation"`
}

// ResolveDisplay resolves what an identity looks like right now: the member's
// per-room override wins over the profile, and a missing profile falls back to
// a placeholder. Either argument may be nil.
func ResolveDisplay(id IdentityID, user *User, member *Member) Display {
	d := Display{IdentityID: id, Name: DepartedName, Color: ColorBlack}
	if user != nil {
		d.Name = user.DisplayName
		d.Color = user.Color
		d.AvatarHue = user.AvatarHue
		d.AvatarSaturation = user.AvatarSaturation
	}
	if member != nil {
		if member.Style.Color != "" {
			d.Color = member.Style.Color
		}
		if member.Style.AvatarHue != nil {
			d.AvatarHue = *member.Style.AvatarHue
		}
		if member.Style.AvatarSaturation != nil {
			d.AvatarSaturation = *member.Style.AvatarSaturation
		}
	}
	return d
}
