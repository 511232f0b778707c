package membershipstore_test

import (
	"errors"
	"testing"

	membershipstore "github.com/dalemusser/groupsync/internal/app/store/memberships"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/groupsync/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_SaveGetDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := models.GroupMembership{GroupID: 1, UserID: 2, IsConfirmed: true}
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Get(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Role() != models.RoleMember || !got.IsConfirmed {
		t.Errorf("got %+v", got)
	}
	created := got.CreatedAt

	m.IsAdmin = true
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, _ = store.Get(ctx, 1, 2)
	if got.Role() != models.RoleAdmin {
		t.Errorf("Role = %q, want admin", got.Role())
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("CreatedAt changed on update")
	}

	n, err := store.Delete(ctx, 1, 2)
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, 1, 2); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("Get after delete err = %v, want ErrNoDocuments", err)
	}
}

func TestStore_ListPageSkipsBanned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rows := []models.GroupMembership{
		{GroupID: 2, UserID: 1, IsConfirmed: true},
		{GroupID: 1, UserID: 3, IsConfirmed: true},
		{GroupID: 1, UserID: 1, IsConfirmed: true, IsBanned: true},
		{GroupID: 1, UserID: 2, IsConfirmed: true},
	}
	for _, m := range rows {
		if err := store.Save(ctx, m); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	page, err := store.ListPage(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	want := [][2]int64{{1, 2}, {1, 3}, {2, 1}}
	if len(page) != len(want) {
		t.Fatalf("ListPage len = %d, want %d", len(page), len(want))
	}
	for i, w := range want {
		if page[i].GroupID != w[0] || page[i].UserID != w[1] {
			t.Errorf("page[%d] = (%d,%d), want %v", i, page[i].GroupID, page[i].UserID, w)
		}
	}

	second, _ := store.ListPage(ctx, 1, 1)
	if len(second) != 1 || second[0].UserID != 3 {
		t.Errorf("ListPage(1,1) = %+v", second)
	}

	count, _ := store.CountByGroup(ctx, 1)
	if count != 2 {
		t.Errorf("CountByGroup = %d, want 2", count)
	}
	if n, _ := store.DeleteByGroup(ctx, 1); n != 3 {
		t.Errorf("DeleteByGroup = %d, want 3", n)
	}
}
