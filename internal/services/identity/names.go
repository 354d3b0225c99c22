package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// Name bounds
const (
	MaxDisplayNameLength = 24
	MinUsernameLength    = 3
	MaxUsernameLength    = 20
	MinPasswordLength    = 8
	// bcrypt ignores input past 72 bytes
	MaxPasswordLength = 72
)

// NormalizeDisplayName trims and NFC-normalizes a display name and checks its length
func NormalizeDisplayName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxDisplayNameLength {
		return "", model.ErrInvalidDisplayName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", model.ErrInvalidDisplayName
		}
	}
	return name, nil
}

// NormalizeUsername lowercases a username and checks it is 3-20 of [a-z0-9_]
func NormalizeUsername(username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return "", model.ErrInvalidUsername
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return "", model.ErrInvalidUsername
		}
	}
	return username, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return model.ErrInvalidPassword
	}
	return nil
}
