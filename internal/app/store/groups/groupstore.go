// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"strings"
	"time"

	counterstore "github.com/dalemusser/groupsync/internal/app/store/counters"
	"github.com/dalemusser/groupsync/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c   *mongo.Collection
	ids *counterstore.Store
}

var (
	ErrDuplicateGroupID = errors.New("a group with this id already exists")
	errBadStatus        = errors.New(`status must be "active" or "inactive"`)
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups"), ids: counterstore.New(db)}
}

func (s *Store) GetByID(ctx context.Context, id int64) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts g. A zero ID is allocated from the "groups" counter; an
// explicit ID bumps the counter past it.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	if g.ID == 0 {
		id, err := s.ids.Next(ctx, "groups")
		if err != nil {
			return models.Group{}, err
		}
		g.ID = id
	} else if err := s.ids.Bump(ctx, "groups", g.ID); err != nil {
		return models.Group{}, err
	}
	now := time.Now().UTC()
	g.NameCI = text.Fold(g.Name)
	if g.Status == "" {
		g.Status = models.GroupActive
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroupID
		}
		return models.Group{}, err
	}
	return g, nil
}

func (s *Store) UpdateInfo(ctx context.Context, id int64, name, desc string) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
		// Description can be cleared (set to empty)
		"description": desc,
	}
	if strings.TrimSpace(name) != "" {
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	return s.update(ctx, id, set)
}

func (s *Store) SetParent(ctx context.Context, id, parentID int64) error {
	return s.update(ctx, id, bson.M{"parent_id": parentID, "updated_at": time.Now().UTC()})
}

func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	if status != models.GroupActive && status != models.GroupInactive {
		return errBadStatus
	}
	return s.update(ctx, id, bson.M{"status": status, "updated_at": time.Now().UTC()})
}

func (s *Store) update(ctx context.Context, id int64, set bson.M) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a group by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// List returns groups ordered by ID. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{}, opts)
}

// Children returns the direct children of parentID ordered by ID.
func (s *Store) Children(ctx context.Context, parentID int64) ([]models.Group, error) {
	return s.find(ctx, bson.M{"parent_id": parentID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// Count returns the number of groups.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Group, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
