package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Identity:
		o.printIdentity(v)
	case AuthResult:
		o.printAuthResult(v)
	case Room:
		o.printRoom(v)
	case RoomList:
		o.printRoomList(v)
	case MemberList:
		o.printMembers(v.Members)
	case Message:
		o.printMessage(v)
	case MessageList:
		for _, m := range v.Messages {
			o.printMessage(m)
		}
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Identity response type (matches API)
type Identity struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	DisplayName string   `json:"display_name"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Color       string   `json:"color"`
}

// AuthResult combines identity and token
type AuthResult struct {
	Identity     Identity  `json:"identity"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Room response type
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Capacity    int      `json:"capacity"`
	MemberCount int      `json:"member_count"`
	HasPassword bool     `json:"has_password"`
	InviteOnly  bool     `json:"invite_only"`
	Permanent   bool     `json:"permanent"`
	HostID      string   `json:"host_id,omitempty"`
	Members     []Member `json:"members,omitempty"`
}

// RoomList response type
type RoomList struct {
	Rooms []Room `json:"rooms"`
}

// Member response type
type Member struct {
	IdentityID   string `json:"identity_id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	IsHost       bool   `json:"is_host"`
	MessageCount int    `json:"message_count"`
	State        string `json:"state"`
}

// MemberList response type
type MemberList struct {
	Members []Member `json:"members"`
}

// Sender is how a message author looked when the message was read
type Sender struct {
	IdentityID string `json:"identity_id,omitempty"`
	Name       string `json:"name"`
	Color      string `json:"color"`
}

// Message response type
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Sender    Sender    `json:"sender"`
}

// MessageList response type
type MessageList struct {
	Messages []Message `json:"messages"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func (o *Output) printIdentity(i Identity) {
	fmt.Fprintf(o.w, "Identity: %s (%s)\n", i.DisplayName, i.ID)
	fmt.Fprintf(o.w, "Kind: %s\n", i.Kind)
	if i.Username != "" {
		fmt.Fprintf(o.w, "Username: %s\n", i.Username)
	}
	if len(i.Roles) > 0 {
		fmt.Fprintf(o.w, "Roles: %s\n", strings.Join(i.Roles, ", "))
	}
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printIdentity(a.Identity)
	fmt.Fprintf(o.w, "Token: %s\n", a.SessionToken)
}

func (o *Output) printRoom(r Room) {
	fmt.Fprintf(o.w, "Room: %s (%s)\n", r.Name, r.ID)
	if r.Description != "" {
		fmt.Fprintf(o.w, "Description: %s\n", r.Description)
	}
	fmt.Fprintf(o.w, "Members: %d/%d%s\n", r.MemberCount, r.Capacity, roomFlags(r))
	if len(r.Members) > 0 {
		o.printMembers(r.Members)
	}
}

func (o *Output) printRoomList(l RoomList) {
	if len(l.Rooms) == 0 {
		fmt.Fprintln(o.w, "No rooms")
		return
	}
	for _, r := range l.Rooms {
		fmt.Fprintf(o.w, "%s  %-24s %d/%d%s\n", r.ID, r.Name, r.MemberCount, r.Capacity, roomFlags(r))
	}
}

func roomFlags(r Room) string {
	var flags []string
	if r.HasPassword {
		flags = append(flags, "password")
	}
	if r.InviteOnly {
		flags = append(flags, "invite-only")
	}
	if r.Permanent {
		flags = append(flags, "permanent")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}

func (o *Output) printMembers(members []Member) {
	fmt.Fprintf(o.w, "Members (%d):\n", len(members))
	for _, m := range members {
		hostStr := ""
		if m.IsHost {
			hostStr = " [host]"
		}
		fmt.Fprintf(o.w, "  - %s (%s) - %s%s\n", m.Name, m.IdentityID, m.State, hostStr)
	}
}

func (o *Output) printMessage(m Message) {
	timestamp := m.CreatedAt.Local().Format("15:04:05")
	if m.Type != "normal" {
		fmt.Fprintf(o.w, "[%s] * %s\n", timestamp, m.Body)
		return
	}
	fmt.Fprintf(o.w, "[%s] %s: %s\n", timestamp, m.Sender.Name, m.Body)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Storage != "" {
		fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	}
}
