// internal/domain/models/groupmembership.go
package models

import (
	"time"
)

// GroupMembership is the authoritative join between users and groups.
// Exactly one document per (group_id, user_id). Leaving a group deletes the
// document; banning keeps it with IsBanned set.
type GroupMembership struct {
	GroupID     int64     `bson:"group_id" json:"group_id"`
	UserID      int64     `bson:"user_id" json:"user_id"`
	IsAdmin     bool      `bson:"is_admin" json:"is_admin"`
	IsMod       bool      `bson:"is_mod" json:"is_mod"`
	IsConfirmed bool      `bson:"is_confirmed" json:"is_confirmed"`
	IsBanned    bool      `bson:"is_banned" json:"is_banned"`
	InviteSent  bool      `bson:"invite_sent" json:"invite_sent"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// Membership roles as seen by the social platform.
const (
	RoleAdmin  = "admin"
	RoleMod    = "mod"
	RoleMember = "member"
)

// Role returns the highest role held. Banned memberships report "".
func (m GroupMembership) Role() string {
	switch {
	case m.IsBanned:
		return ""
	case m.IsAdmin:
		return RoleAdmin
	case m.IsMod:
		return RoleMod
	default:
		return RoleMember
	}
}

// IsActiveMember reports whether the user currently counts as a member:
// confirmed and not banned.
func (m GroupMembership) IsActiveMember() bool {
	return m.IsConfirmed && !m.IsBanned
}
