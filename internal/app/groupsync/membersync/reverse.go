package membersync

import (
	"context"
	"errors"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// onGroupContact applies CRM membership changes of managed records to the
// social platform.
func (s *Syncer) onGroupContact(ctx context.Context, ev crm.GroupContactEvent) error {
	if len(ev.ContactIDs) == 0 {
		return nil
	}
	tag, _, err := s.res.Classify(ctx, ev.GroupID)
	switch {
	case errors.Is(err, synctag.ErrNotSyncTag), errors.Is(err, crm.ErrNotFound):
		return nil
	case err != nil:
		s.log.Warn("classify crm group failed", zap.Int64("crm_group_id", ev.GroupID), zap.Error(err))
		return err
	case !tag.Managed():
		return nil
	}
	_, err = s.ApplyFromCRM(ctx, tag, ev.Op, ev.ContactIDs)
	return err
}

// ApplyFromCRM applies a CRM membership change of contactIDs in the record
// identified by tag. An edit (rejoin) is treated as an add. It returns how
// many contacts changed the social platform.
func (s *Syncer) ApplyFromCRM(ctx context.Context, tag synctag.Tag, op crm.Op, contactIDs []int64) (int, error) {
	groupID := tag.GroupID
	log := s.log.With(
		zap.Int64("group_id", groupID),
		zap.String("record", tag.Kind.String()),
		zap.String("op", string(op)))

	if !s.hooks.ShouldSync(ctx, groupID) {
		return 0, nil
	}
	if _, err := s.social.Group(ctx, groupID); err != nil {
		if errors.Is(err, social.ErrNotFound) {
			log.Warn("crm record for unknown group")
			return 0, nil
		}
		return 0, err
	}
	corr, err := s.res.Resolve(ctx, groupID)
	if err != nil && !errors.Is(err, resolver.ErrNotFound) {
		return 0, err
	}

	contacts, err := s.crm.Contacts(ctx, crm.ContactFilter{IDs: contactIDs})
	if err != nil {
		log.Error("load contacts failed", zap.Int64s("contact_ids", contactIDs), zap.Error(err), zap.Stack("stack"))
		return 0, err
	}

	adding := op != crm.OpDelete
	changed := 0
	var errs error
	for _, c := range contacts {
		userID, err := s.persons.UserFor(ctx, c)
		if err != nil {
			log.Warn("person unresolved; skipping", zap.Int64("contact_id", c.ID), zap.Error(err))
			metrics.SyncOperations.WithLabelValues("b2a", "membership", metrics.ResultSkipped).Inc()
			continue
		}
		var did bool
		var step error
		switch {
		case adding && tag.IsACL():
			did, step = s.adminAdded(ctx, corr, groupID, userID, c.ID)
		case adding:
			did, step = s.memberAdded(ctx, groupID, userID)
		case tag.IsACL():
			did, step = s.adminRemoved(ctx, groupID, userID)
		default:
			did, step = s.memberRemoved(ctx, corr, groupID, userID, c.ID)
		}
		if step != nil {
			log.Warn("apply crm membership failed", zap.Int64("contact_id", c.ID), zap.Int64("user_id", userID), zap.Error(step))
			metrics.SyncOperations.WithLabelValues("b2a", "membership", metrics.ResultError).Inc()
			errs = multierr.Append(errs, step)
			continue
		}
		if did {
			changed++
		}
		metrics.SyncOperations.WithLabelValues("b2a", "membership", metrics.ResultOK).Inc()
	}
	return changed, errs
}

// join makes userID a confirmed member. ok is false when the user is
// banned; joined is false when the user already was a member.
func (s *Syncer) join(ctx context.Context, groupID, userID int64) (joined, ok bool, err error) {
	err = s.social.Join(s.socialSubs.Suppress(ctx), groupID, userID)
	switch {
	case err == nil:
		return true, true, nil
	case errors.Is(err, social.ErrAlreadyMember):
		return false, true, nil
	case errors.Is(err, social.ErrBanned):
		s.log.Info("banned user not re-added from crm", zap.Int64("group_id", groupID), zap.Int64("user_id", userID))
		return false, false, nil
	default:
		return false, false, err
	}
}

func (s *Syncer) memberAdded(ctx context.Context, groupID, userID int64) (bool, error) {
	joined, _, err := s.join(ctx, groupID, userID)
	return joined, err
}

func (s *Syncer) adminAdded(ctx context.Context, corr resolver.Correspondence, groupID, userID, contactID int64) (bool, error) {
	if corr.MemberID != 0 {
		cur, found, err := s.row(ctx, corr.MemberID, contactID)
		if err != nil {
			return false, err
		}
		if !found || cur != crm.StatusAdded {
			wctx, done := s.suppressCRM(ctx)
			err := s.crm.AddGroupContacts(wctx, corr.MemberID, crm.StatusAdded, contactID)
			done()
			if err != nil {
				return false, err
			}
		}
	}
	joined, ok, err := s.join(ctx, groupID, userID)
	if err != nil || !ok {
		return joined, err
	}
	m, err := s.social.Membership(ctx, groupID, userID)
	if err != nil {
		return joined, err
	}
	if m.IsAdmin {
		return joined, nil
	}
	return true, s.social.Promote(s.socialSubs.Suppress(ctx), groupID, userID, models.RoleAdmin)
}

func (s *Syncer) adminRemoved(ctx context.Context, groupID, userID int64) (bool, error) {
	m, err := s.social.Membership(ctx, groupID, userID)
	if errors.Is(err, social.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !m.IsAdmin {
		return false, nil
	}
	return true, s.social.Demote(s.socialSubs.Suppress(ctx), groupID, userID)
}

// memberRemoved drops userID from the group and, when the contact still has
// a live ACL row, removes that too.
func (s *Syncer) memberRemoved(ctx context.Context, corr resolver.Correspondence, groupID, userID, contactID int64) (bool, error) {
	err := s.social.Remove(s.socialSubs.Suppress(ctx), groupID, userID)
	removed := err == nil
	if err != nil && !errors.Is(err, social.ErrNotMember) {
		return false, err
	}
	if corr.ACLID == 0 {
		return removed, nil
	}
	cur, found, err := s.row(ctx, corr.ACLID, contactID)
	if err != nil {
		return removed, err
	}
	if !found || cur == crm.StatusRemoved {
		return removed, nil
	}
	ctx, done := s.suppressCRM(ctx)
	defer done()
	return removed, s.crm.RemoveGroupContacts(ctx, corr.ACLID, contactID)
}
