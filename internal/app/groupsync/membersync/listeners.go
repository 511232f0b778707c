package membersync

import (
	"context"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
)

// Priority of the membership listeners on both buses.
const Priority = 20

// Register subscribes the Syncer to the social and CRM buses. Calling it
// again replaces the previous subscriptions.
func (s *Syncer) Register(socialBus, crmBus *events.Bus) {
	s.Unregister()

	add := func(ctx context.Context, groupID, userID int64) error {
		_, err := s.Sync(ctx, ActionAdd, groupID, userID, "")
		return err
	}

	s.socialSubs = events.Set{
		events.On(socialBus, social.TopicMemberJoined, "membersync.joined", Priority,
			func(ctx context.Context, ev social.MemberJoined) error { return add(ctx, ev.GroupID, ev.UserID) }),
		events.On(socialBus, social.TopicInviteAccepted, "membersync.invite-accepted", Priority,
			func(ctx context.Context, ev social.InviteAccepted) error { return add(ctx, ev.GroupID, ev.UserID) }),
		events.On(socialBus, social.TopicMemberUnbanned, "membersync.unbanned", Priority,
			func(ctx context.Context, ev social.MemberUnbanned) error { return add(ctx, ev.GroupID, ev.UserID) }),
		events.On(socialBus, social.TopicMemberPromoted, "membersync.promoted", Priority,
			func(ctx context.Context, ev social.MemberPromoted) error {
				return s.roleChanged(ctx, ev.GroupID, ev.UserID, ev.From, ev.Role)
			}),
		events.On(socialBus, social.TopicMemberDemoted, "membersync.demoted", Priority,
			func(ctx context.Context, ev social.MemberDemoted) error {
				return s.roleChanged(ctx, ev.GroupID, ev.UserID, ev.From, models.RoleMember)
			}),
		events.On(socialBus, social.TopicMemberBanned, "membersync.banned", Priority,
			func(ctx context.Context, ev social.MemberBanned) error {
				hint := StatusBanned
				if ev.WasAdmin {
					hint = StatusExAdmin
				}
				_, err := s.Sync(ctx, ActionDelete, ev.GroupID, ev.UserID, hint)
				return err
			}),
		events.On(socialBus, social.TopicMemberLeft, "membersync.left", Priority,
			func(ctx context.Context, ev social.MemberLeft) error {
				_, err := s.Sync(ctx, ActionDelete, ev.GroupID, ev.UserID, StatusAdmin)
				return err
			}),
		events.On(socialBus, social.TopicMemberRemoved, "membersync.removed", Priority,
			func(ctx context.Context, ev social.MemberRemoved) error {
				_, err := s.Sync(ctx, ActionDelete, ev.GroupID, ev.UserID, StatusAdmin)
				return err
			}),
		events.On(socialBus, social.TopicMembersBulkSaved, "membersync.bulk-saved", Priority,
			func(ctx context.Context, ev social.MembersBulkSaved) error {
				var firstErr error
				for _, c := range ev.Changes {
					if err := s.roleChanged(ctx, ev.GroupID, c.UserID, c.From, c.To); err != nil && firstErr == nil {
						firstErr = err
					}
				}
				return firstErr
			}),
	}

	s.crmSubs = events.Set{
		events.On(crmBus, crm.TopicGroupContact, "membersync.group-contact", Priority, s.onGroupContact),
	}
}

// Unregister removes every subscription made by Register.
func (s *Syncer) Unregister() {
	s.socialSubs.Unsubscribe()
	s.crmSubs.Unsubscribe()
	s.socialSubs, s.crmSubs = nil, nil
}

// roleChanged syncs a role change from -> to. Leaving the admin role keeps
// the Member record row and removes the ACL record row.
func (s *Syncer) roleChanged(ctx context.Context, groupID, userID int64, from, to string) error {
	if from == models.RoleAdmin && to != models.RoleAdmin {
		if _, err := s.Sync(ctx, ActionDelete, groupID, userID, StatusExAdmin); err != nil {
			return err
		}
	}
	_, err := s.Sync(ctx, ActionAdd, groupID, userID, roleStatus(to))
	return err
}

func roleStatus(role string) Status {
	switch role {
	case models.RoleAdmin:
		return StatusAdmin
	case models.RoleMod:
		return StatusMod
	default:
		return StatusMember
	}
}
