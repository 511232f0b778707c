// Package aclmirror keeps the CRM permission rule that lets holders of a
// group's ACL record edit its Member record.
//
// Per ACL record there is exactly one role (an acl_role option value named
// after the ACL record's tag), one assignment of that role to the ACL record
// and one Edit rule over the Member record. Repair converges to that state
// from anything, deleting duplicates and orphans.
package aclmirror

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Mirror repairs and deletes access-control rules.
type Mirror struct {
	crm crm.API
	log *zap.Logger
}

// New builds a Mirror.
func New(api crm.API, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{crm: api, log: logger}
}

// RuleName is the name given to the edit rule over member.
func RuleName(member crm.Group) string {
	return member.Title + ": " + crm.OperationEdit
}

// Repair makes the role, assignment and rule for acl/member exist exactly
// once. A non-nil error means at least one step did not complete.
func (m *Mirror) Repair(ctx context.Context, acl, member crm.Group) error {
	if acl.ID == 0 || member.ID == 0 || acl.Source == "" {
		return fmt.Errorf("%w: repair needs acl and member records", crm.ErrValidation)
	}
	log := m.log.With(zap.Int64("acl_id", acl.ID), zap.Int64("member_id", member.ID))

	var errs error
	role, err := m.ensureRole(ctx, acl)
	if err != nil {
		log.Error("acl role repair failed", zap.Error(err), zap.Stack("stack"))
		errs = fmt.Errorf("repair role: %w", err)
	}
	if role.Value == "" {
		return errs
	}
	if err := m.ensureAssignment(ctx, acl, role); err != nil {
		log.Error("acl assignment repair failed", zap.Error(err), zap.Stack("stack"))
		errs = multierr.Append(errs, fmt.Errorf("repair assignment: %w", err))
	}
	if err := m.ensureRule(ctx, role, member); err != nil {
		log.Error("acl rule repair failed", zap.Error(err), zap.Stack("stack"))
		errs = multierr.Append(errs, fmt.Errorf("repair rule: %w", err))
	}
	return errs
}

func (m *Mirror) ensureRole(ctx context.Context, acl crm.Group) (crm.OptionValue, error) {
	roles, err := m.crm.OptionValues(ctx, crm.OptionValueFilter{OptionGroup: crm.OptionGroupACLRole, Name: acl.Source})
	if err != nil {
		return crm.OptionValue{}, err
	}
	if len(roles) == 0 {
		return m.crm.CreateOptionValue(ctx, crm.OptionValueParams{
			OptionGroup: crm.OptionGroupACLRole,
			Name:        acl.Source,
			Label:       acl.Title,
			IsActive:    true,
		})
	}

	role := roles[0]
	var errs error
	for _, extra := range roles[1:] {
		m.log.Warn("deleting duplicate acl role", zap.Int64("option_value_id", extra.ID), zap.String("name", extra.Name))
		errs = multierr.Append(errs, m.crm.DeleteOptionValue(ctx, extra.ID))
	}
	if role.Label != acl.Title || !role.IsActive {
		updated, err := m.crm.UpdateOptionValue(ctx, role.ID, crm.OptionValueParams{
			OptionGroup: crm.OptionGroupACLRole,
			Name:        role.Name,
			Label:       acl.Title,
			Value:       role.Value,
			IsActive:    true,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			role = updated
		}
	}
	return role, errs
}

func (m *Mirror) ensureAssignment(ctx context.Context, acl crm.Group, role crm.OptionValue) error {
	assigned, err := m.crm.EntityRoles(ctx, crm.EntityRoleFilter{EntityTable: crm.TableGroup, EntityID: acl.ID})
	if err != nil {
		return err
	}
	var errs error
	kept := false
	for _, a := range assigned {
		if a.ACLRoleID == role.Value && !kept {
			kept = true
			continue
		}
		m.log.Warn("deleting stale acl assignment",
			zap.Int64("entity_role_id", a.ID),
			zap.String("acl_role_id", a.ACLRoleID),
			zap.String("want_role", role.Value))
		errs = multierr.Append(errs, m.crm.DeleteEntityRole(ctx, a.ID))
	}
	if kept {
		return errs
	}
	_, err = m.crm.CreateEntityRole(ctx, crm.EntityRoleParams{
		EntityTable: crm.TableGroup,
		EntityID:    acl.ID,
		ACLRoleID:   role.Value,
		IsActive:    true,
	})
	return multierr.Append(errs, err)
}

func (m *Mirror) ensureRule(ctx context.Context, role crm.OptionValue, member crm.Group) error {
	rules, err := m.crm.ACLs(ctx, crm.ACLFilter{EntityTable: crm.TableACLRole, EntityID: role.Value})
	if err != nil {
		return err
	}
	want := crm.ACLParams{
		Name:        RuleName(member),
		EntityTable: crm.TableACLRole,
		EntityID:    role.Value,
		Operation:   crm.OperationEdit,
		ObjectTable: crm.TableSavedSearch,
		ObjectID:    member.ID,
		IsActive:    true,
	}

	var errs error
	var keep *crm.ACL
	for i, r := range rules {
		if keep == nil && r.Operation == want.Operation && r.ObjectTable == want.ObjectTable && r.ObjectID == want.ObjectID && !r.Deny {
			keep = &rules[i]
			continue
		}
		m.log.Warn("deleting stale acl rule", zap.Int64("acl_rule_id", r.ID), zap.String("name", r.Name))
		errs = multierr.Append(errs, m.crm.DeleteACL(ctx, r.ID))
	}

	switch {
	case keep == nil:
		_, err = m.crm.CreateACL(ctx, want)
	case keep.Name != want.Name || !keep.IsActive:
		_, err = m.crm.UpdateACL(ctx, keep.ID, want)
	}
	return multierr.Append(errs, err)
}

// Delete removes the rule, the assignment and the role of acl, in that order.
// Every step is attempted; the error reports all failures.
func (m *Mirror) Delete(ctx context.Context, acl crm.Group) error {
	if acl.ID == 0 || acl.Source == "" {
		return fmt.Errorf("%w: delete needs an acl record", crm.ErrValidation)
	}
	roles, err := m.crm.OptionValues(ctx, crm.OptionValueFilter{OptionGroup: crm.OptionGroupACLRole, Name: acl.Source})
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	var errs error
	for _, role := range roles {
		rules, err := m.crm.ACLs(ctx, crm.ACLFilter{EntityTable: crm.TableACLRole, EntityID: role.Value})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load rules: %w", err))
			continue
		}
		for _, r := range rules {
			if err := m.crm.DeleteACL(ctx, r.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("delete rule %d: %w", r.ID, err))
			}
		}
	}

	assigned, err := m.crm.EntityRoles(ctx, crm.EntityRoleFilter{EntityTable: crm.TableGroup, EntityID: acl.ID})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load assignments: %w", err))
	}
	for _, a := range assigned {
		if err := m.crm.DeleteEntityRole(ctx, a.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete assignment %d: %w", a.ID, err))
		}
	}

	for _, role := range roles {
		if err := m.crm.DeleteOptionValue(ctx, role.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete role %d: %w", role.ID, err))
		}
	}

	if errs != nil {
		m.log.Error("acl delete incomplete", zap.Int64("acl_id", acl.ID), zap.Error(errs), zap.Stack("stack"))
	}
	return errs
}
