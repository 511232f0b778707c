package aclmirror_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/crm/crmtest"
	"github.com/dalemusser/groupsync/internal/app/groupsync/aclmirror"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"go.uber.org/zap"
)

func records(fake *crmtest.Fake, title string) (acl, member crm.Group) {
	member = fake.SeedGroup(crm.Group{Title: title, Source: synctag.Member(42).String(), GroupType: crm.GroupTypeMailingList})
	acl = fake.SeedGroup(crm.Group{Title: title + ": Administrator", Source: synctag.ACL(42).String(), GroupType: crm.GroupTypeAccessControl})
	return acl, member
}

type counts struct{ roles, assignments, rules int }

func state(t *testing.T, fake *crmtest.Fake, acl crm.Group) (counts, []crm.OptionValue, []crm.ACL) {
	t.Helper()
	ctx := context.Background()
	roles, err := fake.OptionValues(ctx, crm.OptionValueFilter{OptionGroup: crm.OptionGroupACLRole, Name: acl.Source})
	if err != nil {
		t.Fatalf("OptionValues: %v", err)
	}
	assigned, _ := fake.EntityRoles(ctx, crm.EntityRoleFilter{EntityTable: crm.TableGroup, EntityID: acl.ID})
	var rules []crm.ACL
	for _, r := range roles {
		rs, _ := fake.ACLs(ctx, crm.ACLFilter{EntityTable: crm.TableACLRole, EntityID: r.Value})
		rules = append(rules, rs...)
	}
	return counts{len(roles), len(assigned), len(rules)}, roles, rules
}

func TestRepair_CreatesOneOfEach(t *testing.T) {
	fake := crmtest.New(nil)
	m := aclmirror.New(fake, zap.NewNop())
	acl, member := records(fake, "Board")

	if err := m.Repair(context.Background(), acl, member); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	got, roles, rules := state(t, fake, acl)
	if got != (counts{1, 1, 1}) {
		t.Fatalf("counts = %+v, want one of each", got)
	}
	if roles[0].Label != "Board: Administrator" {
		t.Errorf("role label = %q", roles[0].Label)
	}
	r := rules[0]
	if r.Name != "Board: Edit" || r.Operation != crm.OperationEdit || r.ObjectTable != crm.TableSavedSearch || r.ObjectID != member.ID {
		t.Errorf("rule = %+v", r)
	}
}

func TestRepair_Converges(t *testing.T) {
	fake := crmtest.New(nil)
	m := aclmirror.New(fake, zap.NewNop())
	acl, member := records(fake, "Board")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Repair(ctx, acl, member); err != nil {
			t.Fatalf("Repair #%d: %v", i, err)
		}
	}
	_, roles, _ := state(t, fake, acl)

	// Corrupt: an orphaned assignment, a duplicate rule and a rule over
	// another object.
	fake.SeedEntityRole(crm.EntityRole{EntityTable: crm.TableGroup, EntityID: acl.ID, ACLRoleID: "999"})
	fake.SeedEntityRole(crm.EntityRole{EntityTable: crm.TableGroup, EntityID: acl.ID, ACLRoleID: roles[0].Value})
	fake.SeedACL(crm.ACL{Name: "dup", EntityTable: crm.TableACLRole, EntityID: roles[0].Value, Operation: crm.OperationEdit, ObjectTable: crm.TableSavedSearch, ObjectID: member.ID})
	fake.SeedACL(crm.ACL{Name: "stray", EntityTable: crm.TableACLRole, EntityID: roles[0].Value, Operation: crm.OperationEdit, ObjectTable: crm.TableSavedSearch, ObjectID: 777})

	// Rename: the rule name follows the member's current title.
	member.Title = "Directors"
	acl.Title = "Directors: Administrator"
	for i := 0; i < 2; i++ {
		if err := m.Repair(ctx, acl, member); err != nil {
			t.Fatalf("Repair after corruption: %v", err)
		}
	}

	got, roles, rules := state(t, fake, acl)
	if got != (counts{1, 1, 1}) {
		t.Fatalf("counts = %+v, want one of each", got)
	}
	if rules[0].Name != "Directors: Edit" {
		t.Errorf("rule name = %q, want Directors: Edit", rules[0].Name)
	}
	if roles[0].Label != "Directors: Administrator" {
		t.Errorf("role label = %q", roles[0].Label)
	}
	assigned, _ := fake.EntityRoles(ctx, crm.EntityRoleFilter{EntityTable: crm.TableGroup, EntityID: acl.ID})
	if assigned[0].ACLRoleID != roles[0].Value {
		t.Errorf("assignment role = %q, want %q", assigned[0].ACLRoleID, roles[0].Value)
	}
}

func TestRepair_NoWritesWhenConverged(t *testing.T) {
	fake := crmtest.New(nil)
	m := aclmirror.New(fake, zap.NewNop())
	acl, member := records(fake, "Quiet")
	ctx := context.Background()
	_ = m.Repair(ctx, acl, member)

	fake.ResetCalls()
	if err := m.Repair(ctx, acl, member); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	for _, call := range [][2]string{
		{"OptionValue", "create"}, {"EntityRole", "create"}, {"Acl", "create"},
		{"OptionValue", "delete"}, {"EntityRole", "delete"}, {"Acl", "delete"},
	} {
		if n := fake.Calls(call[0], call[1]); n != 0 {
			t.Errorf("%s.%s calls = %d, want 0", call[0], call[1], n)
		}
	}
}

func TestRepair_StepFailureIsReported(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		action string
	}{
		{"role lookup", "OptionValue", "get"},
		{"assignment create", "EntityRole", "create"},
		{"rule create", "Acl", "create"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := crmtest.New(nil)
			m := aclmirror.New(fake, zap.NewNop())
			acl, member := records(fake, "Fails")
			fake.FailOn(tt.entity, tt.action, crm.ErrAPI)

			if err := m.Repair(context.Background(), acl, member); !errors.Is(err, crm.ErrAPI) {
				t.Errorf("Repair err = %v, want ErrAPI", err)
			}
		})
	}
}

func TestRepair_RequiresRecords(t *testing.T) {
	m := aclmirror.New(crmtest.New(nil), zap.NewNop())
	err := m.Repair(context.Background(), crm.Group{}, crm.Group{ID: 1})
	if !errors.Is(err, crm.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestDelete(t *testing.T) {
	fake := crmtest.New(nil)
	m := aclmirror.New(fake, zap.NewNop())
	acl, member := records(fake, "Gone")
	ctx := context.Background()
	_ = m.Repair(ctx, acl, member)

	if err := m.Delete(ctx, acl); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _, _ := state(t, fake, acl); got != (counts{}) {
		t.Errorf("counts after delete = %+v, want none", got)
	}

	// A second delete finds nothing and succeeds.
	if err := m.Delete(ctx, acl); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestDelete_ContinuesPastFailures(t *testing.T) {
	fake := crmtest.New(nil)
	m := aclmirror.New(fake, zap.NewNop())
	acl, member := records(fake, "Partial")
	ctx := context.Background()
	_ = m.Repair(ctx, acl, member)

	fake.FailOn("Acl", "delete", crm.ErrAPI)
	if err := m.Delete(ctx, acl); !errors.Is(err, crm.ErrAPI) {
		t.Fatalf("Delete err = %v, want ErrAPI", err)
	}
	assigned, _ := fake.EntityRoles(ctx, crm.EntityRoleFilter{EntityTable: crm.TableGroup, EntityID: acl.ID})
	if len(assigned) != 0 {
		t.Errorf("assignments left = %d, want 0", len(assigned))
	}
}
