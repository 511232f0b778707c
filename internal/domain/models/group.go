// internal/domain/models/group.go
package models

import (
	"time"
)

// Group is a Logical Group on the social platform.
//
// NOTE:
//   - Membership is stored in the group_memberships collection, not on Group.
//   - ParentID is 0 for top-level groups.
//   - IDs are numeric so they can be embedded in CRM sync tags.
type Group struct {
	ID          int64  `bson:"_id" json:"id"`
	Name        string `bson:"name" json:"name"`
	NameCI      string `bson:"name_ci" json:"name_ci"`
	Description string `bson:"description" json:"description"`
	CreatorID   int64  `bson:"creator_id" json:"creator_id"`
	ParentID    int64  `bson:"parent_id" json:"parent_id"`

	Status string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Group status values.
const (
	GroupActive   = "active"
	GroupInactive = "inactive"
)

// IsActive reports whether the group is active.
func (g Group) IsActive() bool {
	return g.Status == "" || g.Status == GroupActive
}
