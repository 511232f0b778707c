package groupmetastore_test

import (
	"errors"
	"testing"

	groupmetastore "github.com/dalemusser/groupsync/internal/app/store/groupmeta"
	"github.com/dalemusser/groupsync/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_SetGetDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupmetastore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Get(ctx, 1, "k"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Fatalf("Get(unset) err = %v, want ErrNoDocuments", err)
	}
	if err := store.Set(ctx, 1, "k", "a"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, 1, "k", "b"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if err := store.Set(ctx, 1, "other", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := store.Get(ctx, 1, "k")
	if err != nil || v != "b" {
		t.Fatalf("Get = %q, %v; want b", v, err)
	}

	if err := store.Delete(ctx, 1, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, 1, "k"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("Get after Delete err = %v", err)
	}
	if err := store.DeleteGroup(ctx, 1); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if _, err := store.Get(ctx, 1, "other"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("Get after DeleteGroup err = %v", err)
	}
}
