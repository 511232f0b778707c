package social

import (
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
)

// Topics published on the social bus.
const (
	TopicGroupCreated        events.Topic = "social/group_created"
	TopicGroupDetailsUpdated events.Topic = "social/group_details_updated"
	TopicGroupUpdated        events.Topic = "social/group_updated"
	TopicGroupBeforeDelete   events.Topic = "social/group_before_delete"
	TopicGroupParentChanged  events.Topic = "social/group_parent_changed"

	TopicMemberJoined     events.Topic = "social/member_joined"
	TopicMemberLeft       events.Topic = "social/member_left"
	TopicMemberRemoved    events.Topic = "social/member_removed"
	TopicMemberPromoted   events.Topic = "social/member_promoted"
	TopicMemberDemoted    events.Topic = "social/member_demoted"
	TopicMemberBanned     events.Topic = "social/member_banned"
	TopicMemberUnbanned   events.Topic = "social/member_unbanned"
	TopicInviteAccepted   events.Topic = "social/invite_accepted"
	TopicMembersBulkSaved events.Topic = "social/members_bulk_saved"
)

// GroupCreated fires after a group and its creator's admin membership exist.
type GroupCreated struct{ Group models.Group }

// GroupDetailsUpdated fires after name or description changed.
type GroupDetailsUpdated struct {
	Group models.Group
	Old   models.Group
}

// GroupUpdated fires after other group settings (status) changed.
type GroupUpdated struct{ Group models.Group }

// GroupBeforeDelete fires while the group and its memberships still exist.
type GroupBeforeDelete struct{ Group models.Group }

// GroupParentChanged fires after a group moved in the hierarchy.
type GroupParentChanged struct {
	GroupID     int64
	OldParentID int64
	ParentID    int64
}

// Membership events carry the group and the user concerned.

type MemberJoined struct{ GroupID, UserID int64 }
type MemberLeft struct{ GroupID, UserID int64 }
type MemberRemoved struct{ GroupID, UserID int64 }

type MemberPromoted struct {
	GroupID, UserID int64
	Role            string // models.RoleAdmin or models.RoleMod
	From            string // role held before the change
}

type MemberDemoted struct {
	GroupID, UserID int64
	From            string // role held before the demotion
}

type MemberBanned struct {
	GroupID, UserID int64
	WasAdmin        bool
}

type MemberUnbanned struct{ GroupID, UserID int64 }
type InviteAccepted struct{ GroupID, UserID int64 }

// RoleChange is one row of an admin bulk save.
type RoleChange struct {
	UserID int64
	From   string
	To     string
}

// MembersBulkSaved fires once after an admin saved several roles at once.
type MembersBulkSaved struct {
	GroupID int64
	Changes []RoleChange
}

func (GroupCreated) Topic() events.Topic        { return TopicGroupCreated }
func (GroupDetailsUpdated) Topic() events.Topic { return TopicGroupDetailsUpdated }
func (GroupUpdated) Topic() events.Topic        { return TopicGroupUpdated }
func (GroupBeforeDelete) Topic() events.Topic   { return TopicGroupBeforeDelete }
func (GroupParentChanged) Topic() events.Topic  { return TopicGroupParentChanged }
func (MemberJoined) Topic() events.Topic        { return TopicMemberJoined }
func (MemberLeft) Topic() events.Topic          { return TopicMemberLeft }
func (MemberRemoved) Topic() events.Topic       { return TopicMemberRemoved }
func (MemberPromoted) Topic() events.Topic      { return TopicMemberPromoted }
func (MemberDemoted) Topic() events.Topic       { return TopicMemberDemoted }
func (MemberBanned) Topic() events.Topic        { return TopicMemberBanned }
func (MemberUnbanned) Topic() events.Topic      { return TopicMemberUnbanned }
func (InviteAccepted) Topic() events.Topic      { return TopicInviteAccepted }
func (MembersBulkSaved) Topic() events.Topic    { return TopicMembersBulkSaved }
