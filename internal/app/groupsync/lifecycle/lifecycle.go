// Package lifecycle mirrors Logical Group create, update and delete into the
// group's Member and ACL records, and imports legacy CRM groups as Logical
// Groups.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/aclmirror"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hierarchy"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/membersync"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Social is the group surface of the social platform.
type Social interface {
	Group(ctx context.Context, id int64) (models.Group, error)
	CreateGroup(ctx context.Context, in social.NewGroup) (models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	Members(ctx context.Context, groupID int64) ([]models.GroupMembership, error)
	MemberCount(ctx context.Context, groupID int64) (int64, error)
}

// Deps are the collaborators of Sync.
type Deps struct {
	CRM       crm.API
	Resolver  *resolver.Resolver
	ACL       *aclmirror.Mirror
	Hierarchy *hierarchy.Mirror
	Members   *membersync.Syncer
	Social    Social
	Settings  hierarchy.Settings
	Hooks     *hooks.Registry
	Logger    *zap.Logger

	// LegacyCreatorID owns Logical Groups created from legacy CRM groups;
	// 0 leaves them without a creator.
	LegacyCreatorID int64
}

// Sync is the group lifecycle mirror.
type Sync struct {
	crm      crm.API
	res      *resolver.Resolver
	acl      *aclmirror.Mirror
	hier     *hierarchy.Mirror
	members  *membersync.Syncer
	social   Social
	settings hierarchy.Settings
	hooks    *hooks.Registry
	log      *zap.Logger

	legacyCreatorID int64

	createSubs events.Set // created, details_updated
	otherSubs  events.Set
	crmSubs    events.Set
}

// New builds a Sync. Call Register to start listening.
func New(d Deps) *Sync {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Sync{
		crm:             d.CRM,
		res:             d.Resolver,
		acl:             d.ACL,
		hier:            d.Hierarchy,
		members:         d.Members,
		social:          d.Social,
		settings:        d.Settings,
		hooks:           d.Hooks,
		log:             d.Logger,
		legacyCreatorID: d.LegacyCreatorID,
	}
}

// adopt returns the record carrying tag, creating it from p when missing.
func (s *Sync) adopt(ctx context.Context, tag synctag.Tag, p crm.GroupParams) (crm.Group, error) {
	g, err := s.res.FindByTag(ctx, tag)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, resolver.ErrNotFound) {
		return crm.Group{}, err
	}
	g, err = s.crm.CreateGroup(ctx, p)
	if err != nil {
		return crm.Group{}, fmt.Errorf("create %q: %w", p.Source, err)
	}
	return g, nil
}

// Create makes the Member and ACL records of g, places them in the hierarchy,
// repairs the ACL and adds the creator as admin. Existing records carrying
// g's tags are adopted rather than duplicated.
func (s *Sync) Create(ctx context.Context, g models.Group) (resolver.Correspondence, error) {
	log := s.log.With(zap.Int64("group_id", g.ID))
	if !s.hooks.ShouldSync(ctx, g.ID) {
		return resolver.Correspondence{}, nil
	}

	mp, ap := MemberGroupParams(g), ACLGroupParams(g)
	if err := validate(mp, ap); err != nil {
		log.Warn("group not synced: invalid params", zap.Error(err))
		metrics.SyncOperations.WithLabelValues("a2b", "group_create", metrics.ResultError).Inc()
		return resolver.Correspondence{}, err
	}

	var corr resolver.Correspondence
	err := s.crm.Transaction(ctx, func(ctx context.Context) error {
		member, err := s.adopt(ctx, synctag.Member(g.ID), mp)
		if err != nil {
			return err
		}
		acl, err := s.adopt(ctx, synctag.ACL(g.ID), ap)
		if err != nil {
			return err
		}
		corr = resolver.Correspondence{GroupID: g.ID, MemberID: member.ID, ACLID: acl.ID}

		pm, pa, err := s.hier.Target(ctx, g.ParentID)
		if err != nil {
			return err
		}
		if err := s.hier.Place(ctx, corr, pm, pa); err != nil {
			return err
		}
		return s.acl.Repair(ctx, acl, member)
	})
	if err != nil {
		log.Error("group create sync failed", zap.Error(err), zap.Stack("stack"))
		metrics.SyncOperations.WithLabelValues("a2b", "group_create", metrics.ResultError).Inc()
		return resolver.Correspondence{}, err
	}

	if err := s.res.Remember(ctx, corr); err != nil {
		log.Warn("correspondence not persisted", zap.Error(err))
	}

	if g.CreatorID != 0 {
		if _, err := s.members.Sync(ctx, membersync.ActionAdd, g.ID, g.CreatorID, membersync.StatusAdmin); err != nil {
			log.Warn("creator not added as admin", zap.Int64("user_id", g.CreatorID), zap.Error(err))
		}
	}

	metrics.SyncOperations.WithLabelValues("a2b", "group_create", metrics.ResultOK).Inc()
	log.Info("group synced to crm", zap.Int64("member_id", corr.MemberID), zap.Int64("acl_id", corr.ACLID))
	return corr, nil
}

// Update mirrors g's title, description and active flag onto its records,
// repairs the ACL and, for small groups, re-syncs every member. Groups
// without records are created.
func (s *Sync) Update(ctx context.Context, g models.Group) error {
	log := s.log.With(zap.Int64("group_id", g.ID))
	if !s.hooks.ShouldSync(ctx, g.ID) {
		return nil
	}

	mp, ap := MemberGroupParams(g), ACLGroupParams(g)
	if err := validate(mp, ap); err != nil {
		log.Warn("group not synced: invalid params", zap.Error(err))
		return err
	}

	corr, err := s.res.Resolve(ctx, g.ID)
	if errors.Is(err, resolver.ErrNotFound) {
		log.Info("group has no crm records; creating")
		_, err = s.Create(ctx, g)
		return err
	}
	if err != nil {
		return err
	}

	member, err := s.crm.GetGroup(ctx, corr.MemberID)
	if errors.Is(err, crm.ErrNotFound) {
		log.Warn("remembered member record is gone; recreating", zap.Int64("member_id", corr.MemberID))
		if err := s.res.Forget(ctx, g.ID); err != nil {
			return err
		}
		_, err = s.Create(ctx, g)
		return err
	}
	if err != nil {
		return err
	}

	if u, dirty := changes(member, mp); dirty {
		if member, err = s.crm.UpdateGroup(ctx, member.ID, u); err != nil {
			log.Error("update member record failed", zap.Error(err), zap.Stack("stack"))
			return err
		}
	}

	acl, err := s.aclRecord(ctx, &corr, g, ap)
	if err != nil {
		log.Error("acl record sync failed", zap.Error(err), zap.Stack("stack"))
		return err
	}

	if err := s.acl.Repair(ctx, acl, member); err != nil {
		return err
	}
	metrics.SyncOperations.WithLabelValues("a2b", "group_update", metrics.ResultOK).Inc()
	return s.resync(ctx, g.ID)
}

// aclRecord loads or recreates the ACL record and brings its fields to ap.
// A recreated record is remembered in corr before it is nested.
func (s *Sync) aclRecord(ctx context.Context, corr *resolver.Correspondence, g models.Group, ap crm.GroupParams) (crm.Group, error) {
	var acl crm.Group
	var err error
	if corr.ACLID != 0 {
		acl, err = s.crm.GetGroup(ctx, corr.ACLID)
	}
	if corr.ACLID == 0 || errors.Is(err, crm.ErrNotFound) {
		acl, err = s.adopt(ctx, synctag.ACL(g.ID), ap)
		if err != nil {
			return crm.Group{}, err
		}
		corr.ACLID = acl.ID
		if err := s.res.Remember(ctx, *corr); err != nil {
			s.log.Warn("correspondence not persisted", zap.Int64("group_id", g.ID), zap.Error(err))
		}
		if err := s.hier.NestingUpdate(ctx, g.ID, g.ParentID); err != nil {
			s.log.Warn("nesting of recreated acl record failed", zap.Int64("group_id", g.ID), zap.Error(err))
		}
	}
	if err != nil {
		return crm.Group{}, err
	}
	if u, dirty := changes(acl, ap); dirty {
		return s.crm.UpdateGroup(ctx, acl.ID, u)
	}
	return acl, nil
}

// resync re-syncs every member of small groups.
func (s *Sync) resync(ctx context.Context, groupID int64) error {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	limit := st.EagerResyncLimit
	if limit <= 0 {
		limit = models.DefaultEagerResyncLimit
	}
	n, err := s.social.MemberCount(ctx, groupID)
	if err != nil {
		return err
	}
	if n > int64(limit) {
		s.log.Info("member resync deferred to reconciliation",
			zap.Int64("group_id", groupID),
			zap.Int64("members", n),
			zap.Int("limit", limit))
		return nil
	}
	members, err := s.social.Members(ctx, groupID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.IsBanned {
			continue
		}
		if _, err := s.members.Sync(ctx, membersync.ActionAdd, groupID, m.UserID, ""); err != nil {
			s.log.Warn("member resync failed", zap.Int64("group_id", groupID), zap.Int64("user_id", m.UserID), zap.Error(err))
		}
	}
	return nil
}

// Delete removes the ACL rule, the ACL record and the Member record of g.
// Every step is attempted; the error aggregates failures.
func (s *Sync) Delete(ctx context.Context, g models.Group) error {
	log := s.log.With(zap.Int64("group_id", g.ID))
	if !s.hooks.ShouldSync(ctx, g.ID) {
		return nil
	}
	corr, err := s.res.Resolve(ctx, g.ID)
	if errors.Is(err, resolver.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs error
	if corr.ACLID != 0 {
		acl, err := s.crm.GetGroup(ctx, corr.ACLID)
		switch {
		case err == nil:
			errs = multierr.Append(errs, s.acl.Delete(ctx, acl))
			errs = multierr.Append(errs, s.crm.DeleteGroup(ctx, acl.ID))
		case !errors.Is(err, crm.ErrNotFound):
			errs = multierr.Append(errs, err)
		}
	}
	if err := s.crm.DeleteGroup(ctx, corr.MemberID); err != nil && !errors.Is(err, crm.ErrNotFound) {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, s.res.Forget(ctx, g.ID))

	if errs != nil {
		log.Error("group delete sync incomplete", zap.Error(errs), zap.Stack("stack"))
		metrics.SyncOperations.WithLabelValues("a2b", "group_delete", metrics.ResultError).Inc()
		return errs
	}
	metrics.SyncOperations.WithLabelValues("a2b", "group_delete", metrics.ResultOK).Inc()
	log.Info("group records deleted from crm", zap.Int64("member_id", corr.MemberID), zap.Int64("acl_id", corr.ACLID))
	return nil
}
