// Package reconcile repairs drift between the social platform and the CRM in
// resumable chunks.
//
//	populate_a2b  every social membership exists in the CRM
//	prune_a2b     CRM rows without a social membership are set Removed
//	populate_b2a  every active CRM row exists as a social membership
//	prune_b2a     social memberships without an active CRM row are removed
//
// Each pass takes (limit, offset) and returns the offset of the next chunk.
// A pass is done when it returns an empty page.
package reconcile

import (
	"context"
	"errors"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/lifecycle"
	"github.com/dalemusser/groupsync/internal/app/groupsync/membersync"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
)

// Page is the result of one chunk.
type Page struct {
	Next      int  `json:"next"`
	Done      bool `json:"done"`
	Processed int  `json:"processed"`
	Changed   int  `json:"changed"`
}

// Social is the surface of the social platform used by the passes.
type Social interface {
	Group(ctx context.Context, id int64) (models.Group, error)
	Membership(ctx context.Context, groupID, userID int64) (models.GroupMembership, error)
	MembershipPage(ctx context.Context, limit, offset int) ([]models.GroupMembership, error)
	Remove(ctx context.Context, groupID, userID int64) error
	Demote(ctx context.Context, groupID, userID int64) error
}

// Engine runs reconciliation passes.
type Engine struct {
	crm       crm.API
	res       *resolver.Resolver
	members   *membersync.Syncer
	lifecycle *lifecycle.Sync
	social    Social
	hooks     *hooks.Registry
	log       *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(api crm.API, res *resolver.Resolver, members *membersync.Syncer, lc *lifecycle.Sync, sc Social, reg *hooks.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{crm: api, res: res, members: members, lifecycle: lc, social: sc, hooks: reg, log: logger}
}

func count(pass, result string) {
	metrics.ReconcileItems.WithLabelValues(pass, result).Inc()
}

// PopulateA2B mirrors a chunk of social memberships into the CRM, creating
// missing group records on the way.
func (e *Engine) PopulateA2B(ctx context.Context, limit, offset int) (Page, error) {
	const pass = "populate_a2b"
	ctx = resolver.WithMemo(ctx)
	rows, err := e.social.MembershipPage(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if len(rows) == 0 {
		return Page{Next: offset, Done: true}, nil
	}

	p := Page{Next: offset + len(rows), Processed: len(rows)}
	for _, m := range rows {
		log := e.log.With(zap.Int64("group_id", m.GroupID), zap.Int64("user_id", m.UserID))
		if !e.hooks.ShouldSync(ctx, m.GroupID) {
			count(pass, metrics.ResultSkipped)
			continue
		}
		if err := e.ensureGroup(ctx, m.GroupID); err != nil {
			log.Warn("group records unavailable", zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		}
		changed, err := e.members.Sync(ctx, membersync.ActionAdd, m.GroupID, m.UserID, "")
		if err != nil {
			log.Warn("membership not populated", zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		}
		if changed {
			p.Changed++
		}
		count(pass, metrics.ResultOK)
	}
	return p, nil
}

// ensureGroup creates the CRM records of groupID when they are missing.
func (e *Engine) ensureGroup(ctx context.Context, groupID int64) error {
	_, err := e.res.Resolve(ctx, groupID)
	if !errors.Is(err, resolver.ErrNotFound) {
		return err
	}
	g, err := e.social.Group(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = e.lifecycle.Create(ctx, g)
	return err
}

// managed returns the tag of every CRM group this service owns.
func (e *Engine) managed(ctx context.Context) (map[int64]synctag.Tag, []int64, error) {
	tags := map[int64]synctag.Tag{}
	var ids []int64
	for _, kind := range []synctag.Kind{synctag.KindMember, synctag.KindACL} {
		groups, err := e.crm.Groups(ctx, crm.GroupFilter{SourcePrefix: synctag.Prefix(kind)})
		if err != nil {
			return nil, nil, err
		}
		for _, g := range groups {
			tag, err := synctag.Parse(g.Source)
			if err != nil || !tag.Managed() {
				continue
			}
			tags[g.ID] = tag
			ids = append(ids, g.ID)
		}
	}
	return tags, ids, nil
}

// activeRows returns a chunk of Added or Pending rows in managed records.
func (e *Engine) activeRows(ctx context.Context, limit, offset int) (map[int64]synctag.Tag, []crm.GroupContact, error) {
	tags, ids, err := e.managed(ctx)
	if err != nil || len(ids) == 0 {
		return tags, nil, err
	}
	rows, err := e.crm.GroupContacts(ctx, crm.GroupContactFilter{
		GroupIDs: ids,
		Statuses: []crm.Status{crm.StatusAdded, crm.StatusPending},
		Page:     crm.Page{Limit: limit, Offset: offset},
	})
	return tags, rows, err
}

// linkedUser returns the social user linked to contactID, or 0.
func (e *Engine) linkedUser(ctx context.Context, contactID int64) (int64, error) {
	links, err := e.crm.UFMatches(ctx, crm.UFMatchFilter{ContactID: contactID})
	if err != nil || len(links) == 0 {
		return 0, err
	}
	return links[0].UFID, nil
}

// PruneA2B sets CRM rows Removed when the social platform no longer backs
// them: Member record rows need a membership that is not a banned non-admin,
// ACL record rows an admin.
func (e *Engine) PruneA2B(ctx context.Context, limit, offset int) (Page, error) {
	const pass = "prune_a2b"
	ctx = resolver.WithMemo(ctx)
	tags, rows, err := e.activeRows(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if len(rows) == 0 {
		return Page{Next: offset, Done: true}, nil
	}

	ctx = e.members.SuppressCRM(ctx)
	e.hooks.RemoveFilters(ctx)
	defer e.hooks.AddFilters(ctx)

	p := Page{Processed: len(rows)}
	for _, r := range rows {
		tag := tags[r.GroupID]
		log := e.log.With(zap.Int64("group_id", tag.GroupID), zap.Int64("contact_id", r.ContactID))
		if !e.hooks.ShouldSync(ctx, tag.GroupID) {
			count(pass, metrics.ResultSkipped)
			continue
		}
		userID, err := e.linkedUser(ctx, r.ContactID)
		if err != nil || userID == 0 {
			count(pass, metrics.ResultSkipped)
			continue
		}

		m, err := e.social.Membership(ctx, tag.GroupID, userID)
		stale := false
		switch {
		case errors.Is(err, social.ErrNotFound):
			stale = true
		case err != nil:
			log.Warn("membership lookup failed", zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		case tag.IsACL():
			stale = !m.IsAdmin
		case m.IsBanned:
			exAdmin, err := e.wasAdmin(ctx, tag.GroupID, r.ContactID)
			if err != nil {
				log.Warn("acl lookup failed", zap.Error(err))
				count(pass, metrics.ResultError)
				continue
			}
			stale = !exAdmin
		}
		if !stale {
			count(pass, metrics.ResultOK)
			continue
		}

		if err := e.crm.RemoveGroupContacts(ctx, r.GroupID, r.ContactID); err != nil {
			log.Warn("stale crm row not removed", zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		}
		log.Info("stale crm row removed", zap.String("record", tag.Kind.String()))
		p.Changed++
		count(pass, metrics.ResultOK)
	}
	// Removed rows drop out of the Added/Pending set the offset indexes.
	p.Next = offset + len(rows) - p.Changed
	return p, nil
}

// PopulateB2A mirrors a chunk of active CRM rows into the social platform.
func (e *Engine) PopulateB2A(ctx context.Context, limit, offset int) (Page, error) {
	const pass = "populate_b2a"
	ctx = resolver.WithMemo(ctx)
	tags, rows, err := e.activeRows(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if len(rows) == 0 {
		return Page{Next: offset, Done: true}, nil
	}

	// Apply in record order, one batch per record.
	var order []int64
	batches := map[int64][]int64{}
	for _, r := range rows {
		if _, seen := batches[r.GroupID]; !seen {
			order = append(order, r.GroupID)
		}
		batches[r.GroupID] = append(batches[r.GroupID], r.ContactID)
	}

	p := Page{Next: offset + len(rows), Processed: len(rows)}
	for _, crmGroupID := range order {
		tag := tags[crmGroupID]
		changed, err := e.members.ApplyFromCRM(ctx, tag, crm.OpCreate, batches[crmGroupID])
		p.Changed += changed
		if err != nil {
			e.log.Warn("crm rows not populated", zap.Int64("group_id", tag.GroupID), zap.String("record", tag.Kind.String()), zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		}
		count(pass, metrics.ResultOK)
	}
	return p, nil
}

// PruneB2A removes social memberships without an active Member record row
// and demotes admins without an active ACL record row.
func (e *Engine) PruneB2A(ctx context.Context, limit, offset int) (Page, error) {
	const pass = "prune_b2a"
	ctx = resolver.WithMemo(ctx)
	rows, err := e.social.MembershipPage(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if len(rows) == 0 {
		return Page{Next: offset, Done: true}, nil
	}

	ctx = e.members.SuppressSocial(ctx)

	p := Page{Processed: len(rows)}
	removed := 0
	for _, m := range rows {
		log := e.log.With(zap.Int64("group_id", m.GroupID), zap.Int64("user_id", m.UserID))
		if !e.hooks.ShouldSync(ctx, m.GroupID) {
			count(pass, metrics.ResultSkipped)
			continue
		}
		if m.IsBanned {
			// A ban exists only on the social side.
			count(pass, metrics.ResultSkipped)
			continue
		}
		corr, err := e.res.Resolve(ctx, m.GroupID)
		if err != nil {
			count(pass, metrics.ResultSkipped)
			continue
		}
		links, err := e.crm.UFMatches(ctx, crm.UFMatchFilter{UFID: m.UserID})
		if err != nil || len(links) == 0 {
			count(pass, metrics.ResultSkipped)
			continue
		}
		contactID := links[0].ContactID

		active, err := e.active(ctx, corr.MemberID, contactID)
		if err != nil {
			log.Warn("member row lookup failed", zap.Error(err))
			count(pass, metrics.ResultError)
			continue
		}
		if !active {
			if err := e.social.Remove(ctx, m.GroupID, m.UserID); err != nil && !errors.Is(err, social.ErrNotMember) {
				log.Warn("stale membership not removed", zap.Error(err))
				count(pass, metrics.ResultError)
				continue
			}
			log.Info("stale membership removed")
			removed++
			p.Changed++
			count(pass, metrics.ResultOK)
			continue
		}

		if m.IsAdmin && corr.ACLID != 0 {
			admin, err := e.active(ctx, corr.ACLID, contactID)
			if err != nil {
				log.Warn("acl row lookup failed", zap.Error(err))
				count(pass, metrics.ResultError)
				continue
			}
			if !admin {
				if err := e.social.Demote(ctx, m.GroupID, m.UserID); err != nil {
					log.Warn("stale admin not demoted", zap.Error(err))
					count(pass, metrics.ResultError)
					continue
				}
				log.Info("stale admin demoted")
				p.Changed++
			}
		}
		count(pass, metrics.ResultOK)
	}
	p.Next = offset + len(rows) - removed
	return p, nil
}

func (e *Engine) active(ctx context.Context, crmGroupID, contactID int64) (bool, error) {
	rows, err := e.crm.GroupContacts(ctx, crm.GroupContactFilter{GroupIDs: []int64{crmGroupID}, ContactIDs: []int64{contactID}})
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && rows[0].Status.Active(), nil
}

// wasAdmin reports whether contactID has any row, live or Removed, in the ACL
// record of groupID. Banning an admin leaves the ACL row Removed and keeps the
// Member record row.
func (e *Engine) wasAdmin(ctx context.Context, groupID, contactID int64) (bool, error) {
	corr, err := e.res.Resolve(ctx, groupID)
	if err != nil || corr.ACLID == 0 {
		return false, err
	}
	rows, err := e.crm.GroupContacts(ctx, crm.GroupContactFilter{GroupIDs: []int64{corr.ACLID}, ContactIDs: []int64{contactID}})
	return len(rows) > 0, err
}
