package userstore_test

import (
	"errors"
	"testing"

	userstore "github.com/dalemusser/groupsync/internal/app/store/users"
	"github.com/dalemusser/groupsync/internal/app/system/indexes"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/groupsync/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Username:    "jane-doe",
		DisplayName: "  Jane   Doe ",
		Email:       "Jane@Example.COM",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("ID = %d, want 1", created.ID)
	}
	if created.DisplayName != "Jane Doe" {
		t.Errorf("DisplayName = %q", created.DisplayName)
	}
	if created.Email != "jane@example.com" {
		t.Errorf("Email = %q", created.Email)
	}
	if created.Status != "active" {
		t.Errorf("Status = %q, want active", created.Status)
	}

	byEmail, err := store.GetByEmail(ctx, "JANE@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Errorf("GetByEmail = %+v, %v", byEmail, err)
	}
	byName, err := store.GetByUsername(ctx, "jane-doe")
	if err != nil || byName.ID != created.ID {
		t.Errorf("GetByUsername = %+v, %v", byName, err)
	}
}

func TestStore_Create_Duplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	store := userstore.New(db)

	if _, err := store.Create(ctx, models.User{Username: "a", Email: "a@example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Two accounts without email must not collide.
	if _, err := store.Create(ctx, models.User{Username: "b"}); err != nil {
		t.Fatalf("Create without email failed: %v", err)
	}
	if _, err := store.Create(ctx, models.User{Username: "c"}); err != nil {
		t.Fatalf("second Create without email failed: %v", err)
	}

	tests := []struct {
		name string
		user models.User
		want error
	}{
		{"username", models.User{Username: "a", Email: "other@example.com"}, userstore.ErrDuplicateUsername},
		{"email", models.User{Username: "d", Email: "A@example.com"}, userstore.ErrDuplicateEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.user); !errors.Is(err, tt.want) {
				t.Errorf("Create err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStore_SetEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, models.User{Username: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.GetByEmail(ctx, ""); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("GetByEmail(\"\") err = %v, want ErrNoDocuments", err)
	}
	if err := store.SetEmail(ctx, u.ID, "X@Example.com"); err != nil {
		t.Fatalf("SetEmail failed: %v", err)
	}
	got, _ := store.GetByID(ctx, u.ID)
	if got.Email != "x@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if err := store.SetEmail(ctx, 999, "y@example.com"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("SetEmail(missing) err = %v, want ErrNoDocuments", err)
	}
}
