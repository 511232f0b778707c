package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	counterstore "github.com/dalemusser/groupsync/internal/app/store/counters"
	"github.com/dalemusser/groupsync/internal/app/system/normalize"
	"github.com/dalemusser/groupsync/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c   *mongo.Collection
	ids *counterstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users"), ids: counterstore.New(db)}
}

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	errUsernameNeeded    = errors.New("username is required")
)

// GetByID loads a user by numeric ID.
func (s *Store) GetByID(ctx context.Context, id int64) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks up a user by case-insensitive email. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return models.User{}, mongo.ErrNoDocuments
	}
	return s.findOne(ctx, bson.M{"email": email})
}

// GetByUsername looks up a user by exact username.
func (s *Store) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

// Create inserts a new user after normalizing fields. The ID comes from the
// "users" counter.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return models.User{}, errUsernameNeeded
	}
	u.DisplayName = normalize.Name(u.DisplayName)
	u.DisplayCI = text.Fold(u.DisplayName)
	u.Email = normalize.Email(u.Email)
	if u.Status == "" {
		u.Status = "active"
	}

	id, err := s.ids.Next(ctx, "users")
	if err != nil {
		return models.User{}, err
	}
	u.ID = id
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, dupError(err)
		}
		return models.User{}, err
	}
	return u, nil
}

// SetEmail sets the user's email. An empty email removes the field.
func (s *Store) SetEmail(ctx context.Context, id int64, email string) error {
	email = normalize.Email(email)
	update := bson.M{"$set": bson.M{"email": email, "updated_at": time.Now().UTC()}}
	if email == "" {
		update = bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}, "$unset": bson.M{"email": ""}}
	}
	res, err := s.c.UpdateByID(ctx, id, update)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// dupError maps a duplicate key error to the sentinel for the index hit.
func dupError(err error) error {
	if strings.Contains(err.Error(), "uniq_users_email") {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
