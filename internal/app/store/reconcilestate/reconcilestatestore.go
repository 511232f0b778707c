// internal/app/store/reconcilestate/reconcilestatestore.go
package reconcilestatestore

import (
	"context"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const docID = "reconcile"

// Store keeps the reconciliation driver position in reconcile_state.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("reconcile_state")}
}

// Load returns the saved position. ok is false when none was saved.
func (s *Store) Load(ctx context.Context) (models.ReconcileState, bool, error) {
	var st models.ReconcileState
	err := s.c.FindOne(ctx, bson.M{"_id": docID}).Decode(&st)
	if err == mongo.ErrNoDocuments {
		return models.ReconcileState{}, false, nil
	}
	if err != nil {
		return models.ReconcileState{}, false, err
	}
	return st, true, nil
}

// Save upserts the position.
func (s *Store) Save(ctx context.Context, st models.ReconcileState) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": docID}, st, options.Replace().SetUpsert(true))
	return err
}

// Clear removes the saved position so the next run starts over.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": docID})
	return err
}
