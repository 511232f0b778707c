// internal/domain/models/syncsettings.go
package models

import "time"

// DefaultEagerResyncLimit is the member count at or below which a group update
// re-syncs every member immediately.
const DefaultEagerResyncLimit = 50

// SyncSettings is the single settings document for the sync service.
type SyncSettings struct {
	SyncEnabled      bool       `bson:"sync_enabled" json:"sync_enabled"`
	UseContainer     bool       `bson:"use_container" json:"use_container"`
	EagerResyncLimit int        `bson:"eager_resync_limit" json:"eager_resync_limit"`
	UpdatedAt        *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	UpdatedBy        string     `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
}

// DefaultSyncSettings returns the settings used before any document is saved.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		SyncEnabled:      true,
		UseContainer:     true,
		EagerResyncLimit: DefaultEagerResyncLimit,
	}
}
