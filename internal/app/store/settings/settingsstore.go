// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const docID = "sync"

// Store provides access to the sync_settings collection, which holds a
// single document.
type Store struct {
	c *mongo.Collection
}

// New creates a new settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sync_settings")}
}

// Get returns the sync settings, or the defaults if none were saved.
func (s *Store) Get(ctx context.Context) (models.SyncSettings, error) {
	var settings models.SyncSettings
	err := s.c.FindOne(ctx, bson.M{"_id": docID}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return models.DefaultSyncSettings(), nil
	}
	if err != nil {
		return models.SyncSettings{}, err
	}
	if settings.EagerResyncLimit <= 0 {
		settings.EagerResyncLimit = models.DefaultEagerResyncLimit
	}
	return settings, nil
}

// Save upserts the settings document.
func (s *Store) Save(ctx context.Context, settings models.SyncSettings) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"sync_enabled":       settings.SyncEnabled,
			"use_container":      settings.UseContainer,
			"eager_resync_limit": settings.EagerResyncLimit,
			"updated_at":         now,
			"updated_by":         settings.UpdatedBy,
		},
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": docID}, update, options.Update().SetUpsert(true))
	return err
}

// Seed writes settings only when no settings document exists yet. It reports
// whether it inserted.
func (s *Store) Seed(ctx context.Context, settings models.SyncSettings) (bool, error) {
	update := bson.M{
		"$setOnInsert": bson.M{
			"sync_enabled":       settings.SyncEnabled,
			"use_container":      settings.UseContainer,
			"eager_resync_limit": settings.EagerResyncLimit,
			"updated_at":         time.Now().UTC(),
			"updated_by":         settings.UpdatedBy,
		},
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": docID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}
