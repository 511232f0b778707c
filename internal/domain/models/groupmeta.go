// internal/domain/models/groupmeta.go
package models

import "time"

// GroupMeta is one key/value pair scoped to a group.
type GroupMeta struct {
	GroupID   int64     `bson:"group_id"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MetaCRMGroupIDs holds the persisted correspondence "<member_id>,<acl_id>".
const MetaCRMGroupIDs = "crm_group_ids"
