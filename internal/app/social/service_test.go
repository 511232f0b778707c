package social_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/social/socialtest"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*social.Service, *socialtest.Recorder) {
	t.Helper()
	bus := events.NewBus("social", zap.NewNop())
	svc, _ := socialtest.NewService(bus)
	rec := socialtest.Record(bus,
		social.TopicGroupCreated, social.TopicGroupDetailsUpdated, social.TopicGroupUpdated,
		social.TopicGroupBeforeDelete, social.TopicGroupParentChanged,
		social.TopicMemberJoined, social.TopicMemberLeft, social.TopicMemberRemoved,
		social.TopicMemberPromoted, social.TopicMemberDemoted, social.TopicMemberBanned,
		social.TopicMemberUnbanned, social.TopicInviteAccepted, social.TopicMembersBulkSaved,
	)
	return svc, rec
}

func mustUser(t *testing.T, svc *social.Service, username string) models.User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), models.User{Username: username, DisplayName: username})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestCreateGroup_CreatorBecomesAdmin(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	alice := mustUser(t, svc, "alice")

	g, err := svc.CreateGroup(ctx, social.NewGroup{Name: "  Chess  Club ", CreatorID: alice.ID})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.Name != "Chess Club" {
		t.Errorf("Name = %q", g.Name)
	}
	m, err := svc.Membership(ctx, g.ID, alice.ID)
	if err != nil {
		t.Fatalf("Membership: %v", err)
	}
	if m.Role() != models.RoleAdmin || !m.IsConfirmed {
		t.Errorf("creator membership = %+v", m)
	}
	if topics := rec.Topics(); len(topics) != 1 || topics[0] != social.TopicGroupCreated {
		t.Errorf("events = %v, want [group_created]", topics)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   social.NewGroup
		want error
	}{
		{"blank name", social.NewGroup{Name: "  "}, social.ErrInvalid},
		{"unknown creator", social.NewGroup{Name: "x", CreatorID: 99}, social.ErrNotFound},
		{"unknown parent", social.NewGroup{Name: "x", ParentID: 99}, social.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateGroup(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetParent_RejectsCycles(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	a, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "a"})
	b, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "b", ParentID: a.ID})

	if err := svc.SetParent(ctx, a.ID, b.ID); !errors.Is(err, social.ErrInvalid) {
		t.Errorf("SetParent(a under b) err = %v, want ErrInvalid", err)
	}
	if err := svc.SetParent(ctx, a.ID, a.ID); !errors.Is(err, social.ErrInvalid) {
		t.Errorf("SetParent(a under a) err = %v, want ErrInvalid", err)
	}
	if err := svc.SetParent(ctx, b.ID, 0); err != nil {
		t.Fatalf("SetParent(b to top): %v", err)
	}
	evs := rec.Events()
	last, ok := evs[len(evs)-1].(social.GroupParentChanged)
	if !ok || last.OldParentID != a.ID || last.ParentID != 0 {
		t.Errorf("last event = %#v", evs[len(evs)-1])
	}
}

func TestDeleteGroup_DetachesChildrenAndCleansUp(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	u := mustUser(t, svc, "u")
	parent, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "p", CreatorID: u.ID})
	child, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "c", ParentID: parent.ID})
	_ = svc.SetMeta(ctx, parent.ID, "k", "v")

	if err := svc.DeleteGroup(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, err := svc.Group(ctx, parent.ID); !errors.Is(err, social.ErrNotFound) {
		t.Errorf("Group after delete err = %v", err)
	}
	c, _ := svc.Group(ctx, child.ID)
	if c.ParentID != 0 {
		t.Errorf("child ParentID = %d, want 0", c.ParentID)
	}
	if _, ok, _ := svc.Meta(ctx, parent.ID, "k"); ok {
		t.Error("meta survived group delete")
	}
	if _, err := svc.Membership(ctx, parent.ID, u.ID); !errors.Is(err, social.ErrNotFound) {
		t.Errorf("membership survived group delete: %v", err)
	}

	var sawBefore bool
	for _, topic := range rec.Topics() {
		if topic == social.TopicGroupBeforeDelete {
			sawBefore = true
		}
	}
	if !sawBefore {
		t.Error("GroupBeforeDelete not published")
	}
}

func TestMembershipLifecycle(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	owner := mustUser(t, svc, "owner")
	bob := mustUser(t, svc, "bob")
	g, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "g", CreatorID: owner.ID})

	steps := []struct {
		name string
		run  func() error
		want error
	}{
		{"join", func() error { return svc.Join(ctx, g.ID, bob.ID) }, nil},
		{"join again", func() error { return svc.Join(ctx, g.ID, bob.ID) }, social.ErrAlreadyMember},
		{"promote mod", func() error { return svc.Promote(ctx, g.ID, bob.ID, models.RoleMod) }, nil},
		{"promote bad role", func() error { return svc.Promote(ctx, g.ID, bob.ID, "owner") }, social.ErrInvalid},
		{"promote admin", func() error { return svc.Promote(ctx, g.ID, bob.ID, models.RoleAdmin) }, nil},
		{"ban", func() error { return svc.Ban(ctx, g.ID, bob.ID) }, nil},
		{"join while banned", func() error { return svc.Join(ctx, g.ID, bob.ID) }, social.ErrBanned},
		{"unban", func() error { return svc.Unban(ctx, g.ID, bob.ID) }, nil},
		{"leave", func() error { return svc.Leave(ctx, g.ID, bob.ID) }, nil},
		{"leave again", func() error { return svc.Leave(ctx, g.ID, bob.ID) }, social.ErrNotMember},
	}
	for _, st := range steps {
		if err := st.run(); !errors.Is(err, st.want) {
			t.Fatalf("%s: err = %v, want %v", st.name, err, st.want)
		}
	}

	var banned social.MemberBanned
	for _, ev := range rec.Events() {
		if b, ok := ev.(social.MemberBanned); ok {
			banned = b
		}
	}
	if !banned.WasAdmin {
		t.Error("MemberBanned.WasAdmin = false for a banned admin")
	}
}

func TestInvite_NoEventUntilAccepted(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	u := mustUser(t, svc, "u")
	g, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "g"})
	before := len(rec.Events())

	if err := svc.Invite(ctx, g.ID, u.ID); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if len(rec.Events()) != before {
		t.Error("Invite published an event")
	}
	m, _ := svc.Membership(ctx, g.ID, u.ID)
	if m.IsActiveMember() {
		t.Error("invited user counted as active member")
	}
	if err := svc.AcceptInvite(ctx, g.ID, u.ID); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	topics := rec.Topics()
	if topics[len(topics)-1] != social.TopicInviteAccepted {
		t.Errorf("last topic = %s", topics[len(topics)-1])
	}
}

func TestBulkSave_ReportsOnlyChanges(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	a := mustUser(t, svc, "a")
	b := mustUser(t, svc, "b")
	g, _ := svc.CreateGroup(ctx, social.NewGroup{Name: "g"})
	_ = svc.Join(ctx, g.ID, a.ID)
	_ = svc.Join(ctx, g.ID, b.ID)

	changes, err := svc.BulkSave(ctx, g.ID, map[int64]string{
		a.ID: models.RoleAdmin,
		b.ID: models.RoleMember,
	})
	if err != nil {
		t.Fatalf("BulkSave: %v", err)
	}
	if len(changes) != 1 || changes[0].UserID != a.ID || changes[0].From != models.RoleMember || changes[0].To != models.RoleAdmin {
		t.Errorf("changes = %+v", changes)
	}
	evs := rec.Events()
	if _, ok := evs[len(evs)-1].(social.MembersBulkSaved); !ok {
		t.Errorf("last event = %#v, want MembersBulkSaved", evs[len(evs)-1])
	}
}

func TestUsers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, models.User{Username: "x", Email: "X@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.CreateUser(ctx, models.User{Username: "x"}); !errors.Is(err, social.ErrDuplicate) {
		t.Errorf("duplicate username err = %v", err)
	}
	if _, err := svc.CreateUser(ctx, models.User{Username: " "}); !errors.Is(err, social.ErrInvalid) {
		t.Errorf("blank username err = %v", err)
	}
	got, err := svc.UserByEmail(ctx, "x@EXAMPLE.com")
	if err != nil || got.ID != u.ID {
		t.Errorf("UserByEmail = %+v, %v", got, err)
	}
	taken, _ := svc.UsernameTaken(ctx, "x")
	free, _ := svc.UsernameTaken(ctx, "y")
	if !taken || free {
		t.Errorf("UsernameTaken = %v/%v", taken, free)
	}
	if err := svc.SetUserEmail(ctx, 999, "a@b.c"); !errors.Is(err, social.ErrNotFound) {
		t.Errorf("SetUserEmail(missing) err = %v", err)
	}
}
