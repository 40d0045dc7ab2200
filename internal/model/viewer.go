package model

import "strings"

// Role distinguishes guest-facing sessions from the staff console.
type Role string

const (
	RoleGuest Role = "guest"
	RoleStaff Role = "staff"
)

// Viewer identifies the owner of a session. Every backend query issued on
// behalf of a viewer is scoped by GuestID, or by RoomNumber when no guest id
// is known.
type Viewer struct {
	GuestID    string `mapstructure:"guest_id" yaml:"guest_id"`
	RoomNumber string `mapstructure:"room_number" yaml:"room_number"`
	Role       Role   `mapstructure:"role" yaml:"role"`
}

// Empty reports whether the viewer has no owner identity at all.
func (v Viewer) Empty() bool {
	return strings.TrimSpace(v.GuestID) == "" && strings.TrimSpace(v.RoomNumber) == ""
}

// ID returns a stable identifier used to namespace per-viewer local state.
func (v Viewer) ID() string {
	if v.GuestID != "" {
		return "guest:" + v.GuestID
	}
	return "room:" + v.RoomNumber
}
