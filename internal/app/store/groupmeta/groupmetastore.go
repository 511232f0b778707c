// internal/app/store/groupmeta/groupmetastore.go
package groupmetastore

import (
	"context"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists per-group key/value strings in group_meta.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_meta")}
}

// Get returns the value for (groupID, key) or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, groupID int64, key string) (string, error) {
	var m models.GroupMeta
	if err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "key": key}).Decode(&m); err != nil {
		return "", err
	}
	return m.Value, nil
}

// Set upserts the value for (groupID, key).
func (s *Store) Set(ctx context.Context, groupID int64, key, value string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "key": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Delete removes (groupID, key). Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, groupID int64, key string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"group_id": groupID, "key": key})
	return err
}

// DeleteGroup removes every key of a group.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	return err
}
