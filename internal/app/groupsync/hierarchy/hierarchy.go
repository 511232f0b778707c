// Package hierarchy mirrors the Logical Group parent tree into CRM group
// nesting. A group's Member record nests under its parent's Member record and
// its ACL record under the parent's ACL record. Top-level groups nest under
// the container group when the use_container setting is on.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ContainerTitle is the title of the container group.
const ContainerTitle = "Social Groups"

// Groups is the tree surface of the social platform.
type Groups interface {
	Group(ctx context.Context, id int64) (models.Group, error)
	Children(ctx context.Context, parentID int64) ([]models.Group, error)
}

// Settings provides the current sync settings.
type Settings interface {
	Get(ctx context.Context) (models.SyncSettings, error)
}

// Mirror maintains CRM nesting edges.
type Mirror struct {
	crm      crm.API
	res      *resolver.Resolver
	groups   Groups
	settings Settings
	hooks    *hooks.Registry
	log      *zap.Logger
}

// New builds a Mirror.
func New(api crm.API, res *resolver.Resolver, groups Groups, settings Settings, reg *hooks.Registry, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{crm: api, res: res, groups: groups, settings: settings, hooks: reg, log: logger}
}

// EnsureContainer returns the container group, creating it on first use.
func (m *Mirror) EnsureContainer(ctx context.Context) (crm.Group, error) {
	g, err := m.res.FindByTag(ctx, synctag.Container())
	if err == nil || !errors.Is(err, resolver.ErrNotFound) {
		return g, err
	}
	g, err = m.crm.CreateGroup(ctx, crm.GroupParams{
		Title:       ContainerTitle,
		Description: "Container for synced social groups.",
		Source:      synctag.ContainerTag,
		GroupType:   crm.GroupTypeMailingList,
		IsActive:    true,
		Visibility:  "User-and-User-Admin-Only",
	})
	if err != nil {
		m.log.Error("create container group failed", zap.Error(err), zap.Stack("stack"))
		return crm.Group{}, fmt.Errorf("create container: %w", err)
	}
	m.log.Info("container group created", zap.Int64("crm_group_id", g.ID))
	return g, nil
}

// Target returns the CRM parents for a group whose Logical Group parent is
// parentID. Zero ids mean no edge.
func (m *Mirror) Target(ctx context.Context, parentID int64) (parentMember, parentACL int64, err error) {
	if parentID != 0 {
		pc, err := m.res.Resolve(ctx, parentID)
		if errors.Is(err, resolver.ErrNotFound) {
			m.log.Warn("parent group has no crm records", zap.Int64("parent_id", parentID))
			return 0, 0, nil
		}
		if err != nil {
			return 0, 0, err
		}
		return pc.MemberID, pc.ACLID, nil
	}

	st, err := m.settings.Get(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load settings: %w", err)
	}
	if !st.UseContainer {
		return 0, 0, nil
	}
	c, err := m.EnsureContainer(ctx)
	if err != nil {
		return 0, 0, err
	}
	return c.ID, c.ID, nil
}

// Place replaces the nesting edges of corr's records with edges to the given
// parents, in one CRM transaction.
func (m *Mirror) Place(ctx context.Context, corr resolver.Correspondence, parentMember, parentACL int64) error {
	return m.crm.Transaction(ctx, func(ctx context.Context) error {
		if err := m.reparent(ctx, corr.MemberID, parentMember); err != nil {
			return err
		}
		return m.reparent(ctx, corr.ACLID, parentACL)
	})
}

func (m *Mirror) reparent(ctx context.Context, child, parent int64) error {
	if child == 0 {
		return nil
	}
	edges, err := m.crm.GroupNestings(ctx, crm.NestingFilter{ChildGroupID: child})
	if err != nil {
		return fmt.Errorf("load nestings of %d: %w", child, err)
	}
	kept := false
	for _, e := range edges {
		if e.ParentGroupID == parent && parent != 0 && !kept {
			kept = true
			continue
		}
		if err := m.crm.DeleteGroupNesting(ctx, e.ID); err != nil {
			return fmt.Errorf("delete nesting %d: %w", e.ID, err)
		}
	}
	if kept || parent == 0 || parent == child {
		return nil
	}
	if _, err := m.crm.CreateGroupNesting(ctx, crm.NestingParams{ParentGroupID: parent, ChildGroupID: child}); err != nil {
		return fmt.Errorf("nest %d under %d: %w", child, parent, err)
	}
	return nil
}

// NestingUpdate places groupID's records under the records of parentID (0
// for top level). Unsynced groups are left alone.
func (m *Mirror) NestingUpdate(ctx context.Context, groupID, parentID int64) error {
	if !m.hooks.ShouldSync(ctx, groupID) {
		return nil
	}
	corr, err := m.res.Resolve(ctx, groupID)
	if errors.Is(err, resolver.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pm, pa, err := m.Target(ctx, parentID)
	if err != nil {
		return err
	}
	if err := m.Place(ctx, corr, pm, pa); err != nil {
		m.log.Error("nesting update failed",
			zap.Int64("group_id", groupID),
			zap.Int64("parent_id", parentID),
			zap.Error(err),
			zap.Stack("stack"))
		return err
	}
	return nil
}

// Build nests every group under its real parent.
func (m *Mirror) Build(ctx context.Context) error {
	return m.walk(ctx, func(g models.Group) int64 { return g.ParentID })
}

// Collapse nests every group at top level.
func (m *Mirror) Collapse(ctx context.Context) error {
	return m.walk(ctx, func(models.Group) int64 { return 0 })
}

func (m *Mirror) walk(ctx context.Context, parentOf func(models.Group) int64) error {
	var errs error
	seen := map[int64]bool{}
	var visit func(parentID int64)
	visit = func(parentID int64) {
		children, err := m.groups.Children(ctx, parentID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("children of %d: %w", parentID, err))
			return
		}
		for _, g := range children {
			if seen[g.ID] {
				continue
			}
			seen[g.ID] = true
			if err := m.NestingUpdate(ctx, g.ID, parentOf(g)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("group %d: %w", g.ID, err))
			}
			visit(g.ID)
		}
	}
	visit(0)
	m.log.Info("hierarchy walk finished", zap.Int("groups", len(seen)), zap.Bool("ok", errs == nil))
	return errs
}

// RemoveContainer detaches every child of the container group and deletes
// it.
func (m *Mirror) RemoveContainer(ctx context.Context) error {
	c, err := m.res.FindByTag(ctx, synctag.Container())
	if errors.Is(err, resolver.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	edges, err := m.crm.GroupNestings(ctx, crm.NestingFilter{ParentGroupID: c.ID})
	if err != nil {
		return fmt.Errorf("load container children: %w", err)
	}
	for _, e := range edges {
		if err := m.crm.DeleteGroupNesting(ctx, e.ID); err != nil {
			return fmt.Errorf("detach %d from container: %w", e.ChildGroupID, err)
		}
	}
	if err := m.crm.DeleteGroup(ctx, c.ID); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	m.log.Info("container group removed", zap.Int64("crm_group_id", c.ID), zap.Int("detached", len(edges)))
	return nil
}

// ApplyContainerSetting brings the CRM in line with a changed use_container
// setting. The setting must already be saved.
func (m *Mirror) ApplyContainerSetting(ctx context.Context, enabled bool) error {
	if !enabled {
		return m.RemoveContainer(ctx)
	}
	if _, err := m.EnsureContainer(ctx); err != nil {
		return err
	}
	roots, err := m.groups.Children(ctx, 0)
	if err != nil {
		return err
	}
	var errs error
	for _, g := range roots {
		errs = multierr.Append(errs, m.NestingUpdate(ctx, g.ID, 0))
	}
	return errs
}
