// Package membersync mirrors membership transitions between the social
// platform and the CRM.
//
// A social membership maps onto two CRM group contact rows: one in the
// group's Member record and, for admins, one in its ACL record. Rows are never
// deleted; removal sets them to Removed.
package membersync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
)

// Action is the direction of a membership sync.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// Status is the canonical membership status.
type Status string

const (
	StatusMember  Status = "member"
	StatusMod     Status = "mod"
	StatusAdmin   Status = "admin"
	StatusExAdmin Status = "ex-admin" // admin losing the role but staying a member
	StatusBanned  Status = "banned"
)

// StatusOf returns the canonical status of a social membership.
func StatusOf(m models.GroupMembership) Status {
	switch m.Role() {
	case models.RoleAdmin:
		return StatusAdmin
	case models.RoleMod:
		return StatusMod
	case models.RoleMember:
		return StatusMember
	default:
		return StatusBanned
	}
}

// IsAdmin is the CRM projection of s.
func (s Status) IsAdmin() bool { return s == StatusAdmin }

// TouchesACL reports whether s concerns the ACL record.
func (s Status) TouchesACL() bool { return s == StatusAdmin || s == StatusExAdmin }

// Social is the membership surface of the social platform.
type Social interface {
	Group(ctx context.Context, id int64) (models.Group, error)
	Membership(ctx context.Context, groupID, userID int64) (models.GroupMembership, error)
	Join(ctx context.Context, groupID, userID int64) error
	Promote(ctx context.Context, groupID, userID int64, role string) error
	Demote(ctx context.Context, groupID, userID int64) error
	Remove(ctx context.Context, groupID, userID int64) error
}

// Syncer mirrors memberships in both directions.
type Syncer struct {
	crm     crm.API
	res     *resolver.Resolver
	persons *resolver.Persons
	hooks   *hooks.Registry
	social  Social
	log     *zap.Logger

	socialSubs events.Set
	crmSubs    events.Set
}

// New builds a Syncer. Call Register to start listening.
func New(api crm.API, res *resolver.Resolver, persons *resolver.Persons, reg *hooks.Registry, sc Social, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{crm: api, res: res, persons: persons, hooks: reg, social: sc, log: logger}
}

// SuppressSocial returns a copy of ctx under which this component's
// social-side listeners do not run.
func (s *Syncer) SuppressSocial(ctx context.Context) context.Context { return s.socialSubs.Suppress(ctx) }

// SuppressCRM returns a copy of ctx under which this component's CRM-side
// listeners do not run.
func (s *Syncer) SuppressCRM(ctx context.Context) context.Context { return s.crmSubs.Suppress(ctx) }

// suppressCRM suppresses the CRM-side listeners for a CRM write made with the
// returned context and fires the filter hooks. Call done after the write.
func (s *Syncer) suppressCRM(ctx context.Context) (context.Context, func()) {
	s.hooks.RemoveFilters(ctx)
	return s.crmSubs.Suppress(ctx), func() { s.hooks.AddFilters(ctx) }
}

// Sync applies a social membership transition to the CRM. hint overrides the
// status read from the social platform. It reports whether any CRM write was
// made.
func (s *Syncer) Sync(ctx context.Context, action Action, groupID, userID int64, hint Status) (bool, error) {
	log := s.log.With(
		zap.String("action", string(action)),
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", userID))

	if !s.hooks.ShouldSync(ctx, groupID) {
		return false, nil
	}

	corr, err := s.res.Resolve(ctx, groupID)
	if errors.Is(err, resolver.ErrNotFound) {
		log.Debug("group not synced; skipping membership")
		return false, nil
	}
	if err != nil {
		metrics.SyncOperations.WithLabelValues("a2b", "membership", metrics.ResultError).Inc()
		return false, err
	}

	contactID, err := s.persons.ContactFor(ctx, userID)
	if err != nil {
		log.Warn("person unresolved; skipping membership", zap.Error(err))
		metrics.SyncOperations.WithLabelValues("a2b", "membership", metrics.ResultSkipped).Inc()
		return false, nil
	}

	status, active, ok, err := s.status(ctx, action, groupID, userID, hint)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug("no social membership to add")
		return false, nil
	}
	if action == ActionAdd && status == StatusBanned {
		log.Debug("banned membership not added")
		return false, nil
	}
	log = log.With(zap.String("status", string(status)), zap.Int64("contact_id", contactID))

	ctx, done := s.suppressCRM(ctx)
	defer done()

	changed := false
	if err := s.syncMemberRecord(ctx, action, status, active, corr.MemberID, contactID, &changed); err != nil {
		log.Error("member record sync failed", zap.Error(err), zap.Stack("stack"))
		metrics.SyncOperations.WithLabelValues("a2b", "membership", metrics.ResultError).Inc()
		return changed, err
	}
	if err := s.syncACLRecord(ctx, action, status, corr.ACLID, contactID, &changed); err != nil {
		log.Error("acl record sync failed", zap.Error(err), zap.Stack("stack"))
		metrics.SyncOperations.WithLabelValues("a2b", "membership", metrics.ResultError).Inc()
		return changed, err
	}

	metrics.SyncOperations.WithLabelValues("a2b", "membership", metrics.ResultOK).Inc()
	log.Debug("membership synced", zap.Bool("changed", changed))
	return changed, nil
}

// status computes the effective status and the is_active projection. ok is
// false for an add without any social membership.
func (s *Syncer) status(ctx context.Context, action Action, groupID, userID int64, hint Status) (Status, bool, bool, error) {
	m, err := s.social.Membership(ctx, groupID, userID)
	switch {
	case err == nil:
		st := hint
		if st == "" {
			st = StatusOf(m)
		}
		return st, m.IsActiveMember(), true, nil
	case errors.Is(err, social.ErrNotFound):
		if action == ActionAdd {
			return "", false, false, nil
		}
		st := hint
		if st == "" {
			st = StatusMember
		}
		return st, false, true, nil
	default:
		return "", false, false, fmt.Errorf("load membership: %w", err)
	}
}

func (s *Syncer) syncMemberRecord(ctx context.Context, action Action, status Status, active bool, memberID, contactID int64, changed *bool) error {
	if action == ActionAdd {
		want := crm.StatusPending
		if active {
			want = crm.StatusAdded
		}
		cur, found, err := s.row(ctx, memberID, contactID)
		if err != nil {
			return err
		}
		if found && cur == want {
			return nil
		}
		*changed = true
		return s.crm.AddGroupContacts(ctx, memberID, want, contactID)
	}

	if status == StatusExAdmin {
		return nil
	}
	cur, found, err := s.row(ctx, memberID, contactID)
	if err != nil {
		return err
	}
	if !found || cur == crm.StatusRemoved {
		return nil
	}
	*changed = true
	return s.crm.RemoveGroupContacts(ctx, memberID, contactID)
}

func (s *Syncer) syncACLRecord(ctx context.Context, action Action, status Status, aclID, contactID int64, changed *bool) error {
	if aclID == 0 || !status.TouchesACL() {
		return nil
	}
	cur, found, err := s.row(ctx, aclID, contactID)
	if err != nil {
		return err
	}
	if action == ActionAdd && status == StatusAdmin {
		if found && cur == crm.StatusAdded {
			return nil
		}
		*changed = true
		return s.crm.AddGroupContacts(ctx, aclID, crm.StatusAdded, contactID)
	}
	if !found || cur == crm.StatusRemoved {
		return nil
	}
	*changed = true
	return s.crm.RemoveGroupContacts(ctx, aclID, contactID)
}

// row returns the status of contactID in crmGroupID.
func (s *Syncer) row(ctx context.Context, crmGroupID, contactID int64) (crm.Status, bool, error) {
	rows, err := s.crm.GroupContacts(ctx, crm.GroupContactFilter{GroupIDs: []int64{crmGroupID}, ContactIDs: []int64{contactID}})
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Status, true, nil
}
