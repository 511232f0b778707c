package counterstore_test

import (
	"testing"

	counterstore "github.com/dalemusser/groupsync/internal/app/store/counters"
	"github.com/dalemusser/groupsync/internal/testutil"
)

func TestStore_Next(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := counterstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Next(ctx, "groups")
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}

	other, err := store.Next(ctx, "users")
	if err != nil {
		t.Fatalf("Next(users) failed: %v", err)
	}
	if other != 1 {
		t.Errorf("sequences are not independent: users = %d", other)
	}
}

func TestStore_Bump(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := counterstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Bump(ctx, "groups", 41); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}
	if err := store.Bump(ctx, "groups", 5); err != nil {
		t.Fatalf("Bump lower failed: %v", err)
	}
	got, err := store.Next(ctx, "groups")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Next after Bump = %d, want 42", got)
	}
}
