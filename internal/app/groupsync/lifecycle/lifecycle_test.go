package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/lifecycle"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctest"
	"github.com/dalemusser/groupsync/internal/domain/models"
)

func disable(env *synctest.Env) func() {
	set, _ := env.Settings.Get(env.Ctx)
	set.SyncEnabled = false
	_ = env.Settings.Save(env.Ctx, set)
	return func() {
		set.SyncEnabled = true
		_ = env.Settings.Save(env.Ctx, set)
	}
}

func TestParams(t *testing.T) {
	g := models.Group{ID: 7, Name: "Choir", Description: "<p>Sings <em>loudly</em> &amp; often</p>", Status: models.GroupActive}

	mp := lifecycle.MemberGroupParams(g)
	if mp.Source != "BP Sync Group :7:" || mp.GroupType != crm.GroupTypeMailingList || !mp.IsActive {
		t.Errorf("member params = %+v", mp)
	}
	if mp.Description != "Sings loudly & often" {
		t.Errorf("description = %q", mp.Description)
	}

	ap := lifecycle.ACLGroupParams(g)
	if ap.Source != "BP Sync Group ACL :7:" || ap.Title != "Choir: Administrator" || ap.GroupType != crm.GroupTypeAccessControl {
		t.Errorf("acl params = %+v", ap)
	}

	g.Status = models.GroupInactive
	if lifecycle.MemberGroupParams(g).IsActive {
		t.Error("inactive group mirrored as active")
	}
}

func TestCreate_AdoptsExistingRecords(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	enable := disable(env)
	g := env.Group(t, "Board", owner.ID, 0)
	enable()

	seeded := env.CRM.SeedGroup(crm.Group{Title: "Board", Source: synctag.Member(g.ID).String(), GroupType: crm.GroupTypeMailingList})

	corr, err := env.Engine.Lifecycle.Create(env.Ctx, g)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if corr.MemberID != seeded.ID {
		t.Errorf("member id = %d, want adopted %d", corr.MemberID, seeded.ID)
	}
	groups, _ := env.CRM.Groups(env.Ctx, crm.GroupFilter{Source: synctag.Member(g.ID).String()})
	if len(groups) != 1 {
		t.Errorf("%d member records, want 1", len(groups))
	}
}

func TestCreate_RollsBackOnFailure(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	env.CRM.FailOn("Acl", "create", crm.ErrAPI)

	g := env.Group(t, "Board", owner.ID, 0)

	for _, tag := range []synctag.Tag{synctag.Member(g.ID), synctag.ACL(g.ID), synctag.Container()} {
		if _, err := env.Engine.Resolver.FindByTag(env.Ctx, tag); !errors.Is(err, resolver.ErrNotFound) {
			t.Errorf("%s: err = %v, want rolled back", tag, err)
		}
	}
	if _, ok, _ := env.Social.Meta(env.Ctx, g.ID, models.MetaCRMGroupIDs); ok {
		t.Error("correspondence persisted for a failed create")
	}

	// An update heals the group once the CRM recovers.
	if err := env.Engine.Lifecycle.Update(env.Ctx, g); err != nil {
		t.Fatalf("Update: %v", err)
	}
	env.Records(t, g.ID)
}

func TestCreate_VetoedByHook(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	env.Engine.Hooks.AddShouldSync(func(_ context.Context, _ int64) bool { return false })

	g := env.Group(t, "Board", owner.ID, 0)
	if _, err := env.Engine.Resolver.FindByTag(env.Ctx, synctag.Member(g.ID)); !errors.Is(err, resolver.ErrNotFound) {
		t.Errorf("err = %v, want no records", err)
	}
}

func TestUpdate_EagerResyncLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  bool
	}{
		{"small group resyncs", 50, true},
		{"large group defers", 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := synctest.New(t)
			owner := env.User(t, "owner", "owner@example.org")
			x := env.User(t, "x", "x@example.org")
			g := env.Group(t, "Board", owner.ID, 0)
			member, _ := env.Records(t, g.ID)

			if err := env.Social.Join(env.Engine.Members.SuppressSocial(env.Ctx), g.ID, x.ID); err != nil {
				t.Fatalf("Join: %v", err)
			}

			set, _ := env.Settings.Get(env.Ctx)
			set.EagerResyncLimit = tc.limit
			_ = env.Settings.Save(env.Ctx, set)

			if err := env.Engine.Lifecycle.Update(env.Ctx, g); err != nil {
				t.Fatalf("Update: %v", err)
			}
			st, ok := env.Row(t, member.ID, x.ID)
			if got := ok && st == crm.StatusAdded; got != tc.want {
				t.Errorf("x row = %q (found=%v), want synced=%v", st, ok, tc.want)
			}
		})
	}
}

func TestUpdate_RecreatesMissingACLRecord(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	g := env.Group(t, "Board", owner.ID, 0)
	_, acl := env.Records(t, g.ID)
	_ = env.CRM.DeleteGroup(env.Ctx, acl.ID)

	if err := env.Engine.Lifecycle.Update(env.Ctx, g); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, acl2 := env.Records(t, g.ID)
	if acl2.ID == acl.ID {
		t.Fatal("acl record not recreated")
	}
	if corr := env.Correspondence(t, g.ID); corr.ACLID != acl2.ID {
		t.Errorf("correspondence acl = %d, want %d", corr.ACLID, acl2.ID)
	}
	if st, ok := env.Row(t, acl2.ID, owner.ID); !ok || st != crm.StatusAdded {
		t.Errorf("owner acl row = %q, want Added after resync", st)
	}
}

func TestDelete_UnsyncedGroupIsNoop(t *testing.T) {
	env := synctest.New(t)
	if err := env.Engine.Lifecycle.Delete(env.Ctx, models.Group{ID: 99, Name: "Ghost"}); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestDelete_AggregatesFailures(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	g := env.Group(t, "Board", owner.ID, 0)
	member, acl := env.Records(t, g.ID)
	env.CRM.FailOn("Acl", "delete", crm.ErrAPI)

	err := env.Engine.Lifecycle.Delete(env.Ctx, g)
	if !errors.Is(err, crm.ErrAPI) {
		t.Errorf("err = %v, want the rule failure", err)
	}
	for _, id := range []int64{member.ID, acl.ID} {
		if _, err := env.CRM.GetGroup(env.Ctx, id); err == nil {
			t.Errorf("group %d not deleted", id)
		}
	}
}

func seedLegacy(env *synctest.Env, legacyID int64) (member, acl crm.Group, plain, admin crm.Contact) {
	member = env.CRM.SeedGroup(crm.Group{
		Title:     "Choir",
		Source:    synctag.Tag{Kind: synctag.KindLegacyMember, GroupID: legacyID}.String(),
		GroupType: crm.GroupTypeMailingList,
		IsActive:  true,
	})
	acl = env.CRM.SeedGroup(crm.Group{
		Title:     "Choir admins",
		Source:    synctag.Tag{Kind: synctag.KindLegacyACL, GroupID: legacyID}.String(),
		GroupType: crm.GroupTypeAccessControl,
		IsActive:  true,
	})
	plain = env.CRM.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Pat Lee", Email: "pat@example.org"})
	admin = env.CRM.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Sam Roe", Email: "sam@example.org"})
	env.CRM.SeedGroupContact(member.ID, plain.ID, crm.StatusAdded)
	env.CRM.SeedGroupContact(member.ID, admin.ID, crm.StatusAdded)
	env.CRM.SeedGroupContact(acl.ID, admin.ID, crm.StatusAdded)
	return member, acl, plain, admin
}

func TestConvertLegacy(t *testing.T) {
	env := synctest.New(t)
	legacyMember, legacyACL, _, _ := seedLegacy(env, 7)

	n, err := env.Engine.Lifecycle.ConvertLegacy(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("ConvertLegacy = %d, %v; want 1", n, err)
	}

	groups, _ := env.Social.Groups(env.Ctx, 10, 0)
	if len(groups) != 1 || groups[0].Name != "Choir" {
		t.Fatalf("social groups = %+v", groups)
	}
	g := groups[0]

	member, acl := env.Records(t, g.ID)
	if member.ID != legacyMember.ID || acl.ID != legacyACL.ID {
		t.Errorf("records = %d/%d, want the retagged legacy records %d/%d", member.ID, acl.ID, legacyMember.ID, legacyACL.ID)
	}
	if acl.Title != "Choir: Administrator" {
		t.Errorf("acl title = %q", acl.Title)
	}
	rules, _ := env.CRM.ACLs(env.Ctx, crm.ACLFilter{ObjectTable: crm.TableSavedSearch, ObjectID: member.ID})
	if len(rules) != 1 {
		t.Errorf("rules = %d, want 1", len(rules))
	}

	for email, wantAdmin := range map[string]bool{"pat@example.org": false, "sam@example.org": true} {
		u, err := env.Social.UserByEmail(env.Ctx, email)
		if err != nil {
			t.Fatalf("user %s: %v", email, err)
		}
		m, ok := env.Member(t, g.ID, u.ID)
		if !ok || m.IsAdmin != wantAdmin {
			t.Errorf("%s = %+v (found=%v), want admin=%v", email, m, ok, wantAdmin)
		}
	}

	// Nothing left to convert.
	if n, _ := env.Engine.Lifecycle.ConvertLegacy(env.Ctx); n != 0 {
		t.Errorf("second ConvertLegacy = %d, want 0", n)
	}
}

func TestConvertLegacy_CreatorBecomesAdmin(t *testing.T) {
	// The first user created in memory gets id 1.
	env := synctest.New(t, synctest.WithLegacyCreator(1))
	owner := env.User(t, "importer", "importer@example.org")
	if owner.ID != 1 {
		t.Fatalf("owner id = %d, want 1", owner.ID)
	}
	seedLegacy(env, 3)

	if _, err := env.Engine.Lifecycle.ConvertLegacy(env.Ctx); err != nil {
		t.Fatalf("ConvertLegacy: %v", err)
	}
	groups, _ := env.Social.Groups(env.Ctx, 10, 0)
	if len(groups) != 1 || groups[0].CreatorID != owner.ID {
		t.Fatalf("groups = %+v", groups)
	}
	member, acl := env.Records(t, groups[0].ID)
	for _, id := range []int64{member.ID, acl.ID} {
		if st, ok := env.Row(t, id, owner.ID); !ok || st != crm.StatusAdded {
			t.Errorf("creator row in %d = %q, want Added", id, st)
		}
	}
}

func TestConvertLegacy_OnCRMCreateEvent(t *testing.T) {
	env := synctest.New(t)
	_, err := env.CRM.CreateGroup(env.Ctx, crm.GroupParams{
		Title:     "Orchestra",
		Source:    synctag.Tag{Kind: synctag.KindLegacyMember, GroupID: 12}.String(),
		GroupType: crm.GroupTypeMailingList,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	groups, _ := env.Social.Groups(env.Ctx, 10, 0)
	if len(groups) != 1 || groups[0].Name != "Orchestra" {
		t.Fatalf("groups = %+v, want the converted legacy group", groups)
	}
	// The converted group has exactly one record of each kind.
	for _, tag := range []synctag.Tag{synctag.Member(groups[0].ID), synctag.ACL(groups[0].ID)} {
		found, _ := env.CRM.Groups(env.Ctx, crm.GroupFilter{Source: tag.String()})
		if len(found) != 1 {
			t.Errorf("%s: %d records", tag, len(found))
		}
	}
}

func TestConvertLegacyGroup_RequiresLegacyTag(t *testing.T) {
	env := synctest.New(t)
	g := env.CRM.SeedGroup(crm.Group{Title: "Plain", Source: "Import"})
	if _, err := env.Engine.Lifecycle.ConvertLegacyGroup(env.Ctx, g); !errors.Is(err, crm.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestConvertLegacyGroup_CompensatesOnFailure(t *testing.T) {
	env := synctest.New(t)
	legacy, _, _, _ := seedLegacy(env, 5)
	env.CRM.FailOn("Group", "create", crm.ErrAPI) // the member retag

	if _, err := env.Engine.Lifecycle.ConvertLegacyGroup(env.Ctx, legacy); err == nil {
		t.Fatal("want error")
	}
	if n, _ := env.Social.GroupCount(env.Ctx); n != 0 {
		t.Errorf("groups = %d, want the created group deleted", n)
	}
	back, _ := env.CRM.GetGroup(env.Ctx, legacy.ID)
	if back.Source != legacy.Source {
		t.Errorf("source = %q, want the legacy tag restored", back.Source)
	}
}
