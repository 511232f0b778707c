package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/membersync"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const legacyPageSize = 100

// ConvertLegacy converts every CRM group carrying a legacy member tag. It
// returns how many groups were converted; failures are logged and skipped.
func (s *Sync) ConvertLegacy(ctx context.Context) (int, error) {
	var legacy []crm.Group
	for offset := 0; ; offset += legacyPageSize {
		page, err := s.crm.Groups(ctx, crm.GroupFilter{
			SourcePrefix: synctag.Prefix(synctag.KindLegacyMember),
			Page:         crm.Page{Limit: legacyPageSize, Offset: offset},
		})
		if err != nil {
			return 0, fmt.Errorf("list legacy groups: %w", err)
		}
		legacy = append(legacy, page...)
		if len(page) < legacyPageSize {
			break
		}
	}

	converted := 0
	for _, g := range legacy {
		if _, err := s.ConvertLegacyGroup(ctx, g); err != nil {
			s.log.Warn("legacy group not converted", zap.Int64("crm_group_id", g.ID), zap.Error(err))
			continue
		}
		converted++
	}
	s.log.Info("legacy conversion finished", zap.Int("found", len(legacy)), zap.Int("converted", converted))
	return converted, nil
}

// ConvertLegacyGroup creates a Logical Group for the legacy member record
// legacy, re-tags the record (and its ACL sibling) as this group's records,
// and imports their contacts as members and admins.
func (s *Sync) ConvertLegacyGroup(ctx context.Context, legacy crm.Group) (models.Group, error) {
	tag, err := synctag.Parse(legacy.Source)
	if err != nil || tag.Kind != synctag.KindLegacyMember {
		return models.Group{}, fmt.Errorf("%w: crm group %d is not a legacy member record", crm.ErrValidation, legacy.ID)
	}
	log := s.log.With(zap.Int64("crm_group_id", legacy.ID), zap.Int64("legacy_group_id", tag.GroupID))

	// The group is created here; the social listeners must not create its
	// records a second time.
	ctx = s.members.SuppressSocial(s.createSubs.Suppress(ctx))

	g, err := s.social.CreateGroup(ctx, social.NewGroup{
		Name:        legacy.Title,
		Description: legacy.Description,
		CreatorID:   s.legacyCreatorID,
	})
	if err != nil {
		return models.Group{}, fmt.Errorf("create logical group: %w", err)
	}
	log = log.With(zap.Int64("group_id", g.ID))

	var corr resolver.Correspondence
	err = s.crm.Transaction(ctx, func(ctx context.Context) error {
		member, err := s.retag(ctx, legacy, synctag.Member(g.ID), legacy.Title)
		if err != nil {
			return err
		}

		var acl crm.Group
		legacyACL, err := s.res.FindByTag(ctx, tag.Sibling())
		switch {
		case err == nil:
			acl, err = s.retag(ctx, legacyACL, synctag.ACL(g.ID), ACLTitle(g.Name))
		case errors.Is(err, resolver.ErrNotFound):
			acl, err = s.adopt(ctx, synctag.ACL(g.ID), ACLGroupParams(g))
		}
		if err != nil {
			return err
		}

		corr = resolver.Correspondence{GroupID: g.ID, MemberID: member.ID, ACLID: acl.ID}
		if err := s.acl.Repair(ctx, acl, member); err != nil {
			return err
		}
		pm, pa, err := s.hier.Target(ctx, 0)
		if err != nil {
			return err
		}
		return s.hier.Place(ctx, corr, pm, pa)
	})
	if err != nil {
		log.Error("legacy conversion failed", zap.Error(err), zap.Stack("stack"))
		if derr := s.social.DeleteGroup(ctx, g.ID); derr != nil {
			log.Error("compensating group delete failed", zap.Error(derr))
		}
		metrics.SyncOperations.WithLabelValues("b2a", "legacy_convert", metrics.ResultError).Inc()
		return models.Group{}, err
	}
	if err := s.res.Remember(ctx, corr); err != nil {
		log.Warn("correspondence not persisted", zap.Error(err))
	}

	errs := s.importContacts(ctx, synctag.Member(g.ID), corr.MemberID)
	if corr.ACLID != 0 {
		errs = multierr.Append(errs, s.importContacts(ctx, synctag.ACL(g.ID), corr.ACLID))
	}
	if errs != nil {
		log.Warn("some legacy contacts not imported", zap.Error(errs))
	}

	if g.CreatorID != 0 {
		if _, err := s.members.Sync(ctx, membersync.ActionAdd, g.ID, g.CreatorID, membersync.StatusAdmin); err != nil {
			log.Warn("creator not added as admin", zap.Error(err))
		}
	}

	metrics.SyncOperations.WithLabelValues("b2a", "legacy_convert", metrics.ResultOK).Inc()
	log.Info("legacy group converted", zap.Int64("member_id", corr.MemberID), zap.Int64("acl_id", corr.ACLID))
	return g, nil
}

func (s *Sync) retag(ctx context.Context, g crm.Group, tag synctag.Tag, title string) (crm.Group, error) {
	source := tag.String()
	u := crm.GroupUpdate{Source: &source}
	if g.Title != title {
		u.Title = &title
	}
	updated, err := s.crm.UpdateGroup(ctx, g.ID, u)
	if err != nil {
		return crm.Group{}, fmt.Errorf("retag %d as %q: %w", g.ID, source, err)
	}
	return updated, nil
}

// importContacts applies the active contacts of a record to the Logical
// Group.
func (s *Sync) importContacts(ctx context.Context, tag synctag.Tag, crmGroupID int64) error {
	rows, err := s.crm.GroupContacts(ctx, crm.GroupContactFilter{
		GroupIDs: []int64{crmGroupID},
		Statuses: []crm.Status{crm.StatusAdded, crm.StatusPending},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ContactID
	}
	_, err = s.members.ApplyFromCRM(ctx, tag, crm.OpCreate, ids)
	return err
}
