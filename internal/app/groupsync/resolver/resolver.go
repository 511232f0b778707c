// Package resolver maps Logical Groups to their CRM records and social users
// to CRM contacts.
//
// A correspondence is found by sync tag and then remembered in the group's
// meta ("<member_id>,<acl_id>") and, when the ctx carries one, in a
// per-request memo (see WithMemo).
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means no CRM record carries the group's tag yet.
	ErrNotFound = errors.New("correspondence not found")
	// ErrIntegrity means a tag matched more than one CRM record.
	ErrIntegrity = errors.New("sync tag matches more than one record")
	// ErrPersonUnresolved means the counterpart of a person could not be
	// found or created. Callers skip the person.
	ErrPersonUnresolved = errors.New("person link unresolved")
)

// Correspondence links a Logical Group to its Member and ACL records.
// ACLID is 0 when the ACL record is missing.
type Correspondence struct {
	GroupID  int64
	MemberID int64
	ACLID    int64
}

// MetaStore is the group meta surface of the social platform.
type MetaStore interface {
	Meta(ctx context.Context, groupID int64, key string) (string, bool, error)
	SetMeta(ctx context.Context, groupID int64, key, value string) error
	DeleteMeta(ctx context.Context, groupID int64, key string) error
}

// Resolver resolves group correspondences.
type Resolver struct {
	crm  crm.API
	meta MetaStore
	log  *zap.Logger
}

// New builds a Resolver.
func New(api crm.API, meta MetaStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{crm: api, meta: meta, log: logger}
}

// FindByTag returns the one CRM group carrying tag.
func (r *Resolver) FindByTag(ctx context.Context, tag synctag.Tag) (crm.Group, error) {
	source := tag.String()
	groups, err := r.crm.Groups(ctx, crm.GroupFilter{Source: source})
	if err != nil {
		return crm.Group{}, fmt.Errorf("find %q: %w", source, err)
	}
	switch len(groups) {
	case 0:
		return crm.Group{}, fmt.Errorf("%q: %w", source, ErrNotFound)
	case 1:
		return groups[0], nil
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	r.log.Error("sync tag integrity violation",
		zap.String("tag", source),
		zap.Int64s("crm_group_ids", ids),
		zap.Stack("stack"))
	return crm.Group{}, fmt.Errorf("%q matches %v: %w", source, ids, ErrIntegrity)
}

// Resolve returns the correspondence for groupID. ErrNotFound when there is
// no Member record.
func (r *Resolver) Resolve(ctx context.Context, groupID int64) (Correspondence, error) {
	m := memoFrom(ctx)
	if c, ok := m.correspondence(groupID); ok {
		return c, nil
	}

	if c, ok := r.fromMeta(ctx, groupID); ok {
		m.putCorrespondence(c)
		return c, nil
	}

	member, err := r.FindByTag(ctx, synctag.Member(groupID))
	if err != nil {
		return Correspondence{}, err
	}
	c := Correspondence{GroupID: groupID, MemberID: member.ID}

	acl, err := r.FindByTag(ctx, synctag.ACL(groupID))
	switch {
	case err == nil:
		c.ACLID = acl.ID
		if err := r.meta.SetMeta(ctx, groupID, models.MetaCRMGroupIDs, encode(c)); err != nil {
			r.log.Warn("persist correspondence failed", zap.Int64("group_id", groupID), zap.Error(err))
		}
	case errors.Is(err, ErrNotFound):
		r.log.Warn("acl record missing", zap.Int64("group_id", groupID), zap.Int64("member_id", member.ID))
	default:
		return Correspondence{}, err
	}

	m.putCorrespondence(c)
	return c, nil
}

func (r *Resolver) fromMeta(ctx context.Context, groupID int64) (Correspondence, bool) {
	v, ok, err := r.meta.Meta(ctx, groupID, models.MetaCRMGroupIDs)
	if err != nil {
		r.log.Warn("read correspondence meta failed", zap.Int64("group_id", groupID), zap.Error(err))
		return Correspondence{}, false
	}
	if !ok {
		return Correspondence{}, false
	}
	c, ok := decode(groupID, v)
	if !ok {
		r.log.Warn("ignoring malformed correspondence meta", zap.Int64("group_id", groupID), zap.String("value", v))
	}
	return c, ok
}

// Remember persists c to group meta and the memo.
func (r *Resolver) Remember(ctx context.Context, c Correspondence) error {
	memoFrom(ctx).putCorrespondence(c)
	if err := r.meta.SetMeta(ctx, c.GroupID, models.MetaCRMGroupIDs, encode(c)); err != nil {
		return fmt.Errorf("remember group %d: %w", c.GroupID, err)
	}
	return nil
}

// Forget drops the persisted and memoized correspondence for groupID.
func (r *Resolver) Forget(ctx context.Context, groupID int64) error {
	memoFrom(ctx).dropCorrespondence(groupID)
	return r.meta.DeleteMeta(ctx, groupID, models.MetaCRMGroupIDs)
}

// Classify loads a CRM group and parses its tag. Groups without a sync tag
// return synctag.ErrNotSyncTag.
func (r *Resolver) Classify(ctx context.Context, crmGroupID int64) (synctag.Tag, crm.Group, error) {
	g, err := r.crm.GetGroup(ctx, crmGroupID)
	if err != nil {
		return synctag.Tag{}, crm.Group{}, err
	}
	tag, err := synctag.Parse(g.Source)
	if err != nil {
		return synctag.Tag{}, g, err
	}
	return tag, g, nil
}

func encode(c Correspondence) string {
	return strconv.FormatInt(c.MemberID, 10) + "," + strconv.FormatInt(c.ACLID, 10)
}

func decode(groupID int64, v string) (Correspondence, bool) {
	ms, as, ok := strings.Cut(v, ",")
	if !ok {
		return Correspondence{}, false
	}
	mid, err1 := strconv.ParseInt(ms, 10, 64)
	aid, err2 := strconv.ParseInt(as, 10, 64)
	if err1 != nil || err2 != nil || mid <= 0 || aid < 0 {
		return Correspondence{}, false
	}
	return Correspondence{GroupID: groupID, MemberID: mid, ACLID: aid}, true
}
