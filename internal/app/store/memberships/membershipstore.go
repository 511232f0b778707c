// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists group_memberships: one document per (group_id, user_id).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_memberships")}
}

func key(groupID, userID int64) bson.M {
	return bson.M{"group_id": groupID, "user_id": userID}
}

// Get loads the membership for (groupID, userID).
func (s *Store) Get(ctx context.Context, groupID, userID int64) (models.GroupMembership, error) {
	var m models.GroupMembership
	if err := s.c.FindOne(ctx, key(groupID, userID)).Decode(&m); err != nil {
		return models.GroupMembership{}, err
	}
	return m, nil
}

// Save upserts the membership. CreatedAt is kept from the first insert.
func (s *Store) Save(ctx context.Context, m models.GroupMembership) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"is_admin":     m.IsAdmin,
			"is_mod":       m.IsMod,
			"is_confirmed": m.IsConfirmed,
			"is_banned":    m.IsBanned,
			"invite_sent":  m.InviteSent,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	_, err := s.c.UpdateOne(ctx, key(m.GroupID, m.UserID), update, options.Update().SetUpsert(true))
	return err
}

// Delete removes the membership document for (groupID, userID).
func (s *Store) Delete(ctx context.Context, groupID, userID int64) (int64, error) {
	res, err := s.c.DeleteOne(ctx, key(groupID, userID))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByGroup removes all memberships of a group.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByGroup returns every membership of a group ordered by user.
func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]models.GroupMembership, error) {
	return s.find(ctx, bson.M{"group_id": groupID}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
}

// CountByGroup counts the non-banned memberships of a group.
func (s *Store) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "is_banned": false})
}

// ListPage pages non-banned memberships ordered by (group_id, user_id).
// limit <= 0 returns everything from offset on.
func (s *Store) ListPage(ctx context.Context, limit, offset int) ([]models.GroupMembership, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"is_banned": false}, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.GroupMembership, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.GroupMembership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
