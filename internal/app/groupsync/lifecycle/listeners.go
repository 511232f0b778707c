package lifecycle

import (
	"context"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
)

// Priority of the lifecycle listeners. Lower than membersync so a group's
// records exist before its memberships are mirrored.
const Priority = 10

// Register subscribes Sync to the social and CRM buses.
func (s *Sync) Register(socialBus, crmBus *events.Bus) {
	s.Unregister()

	s.createSubs = events.Set{
		events.On(socialBus, social.TopicGroupCreated, "lifecycle.created", Priority,
			func(ctx context.Context, ev social.GroupCreated) error {
				_, err := s.Create(ctx, ev.Group)
				return err
			}),
		events.On(socialBus, social.TopicGroupDetailsUpdated, "lifecycle.details-updated", Priority,
			func(ctx context.Context, ev social.GroupDetailsUpdated) error { return s.Update(ctx, ev.Group) }),
	}
	s.otherSubs = events.Set{
		events.On(socialBus, social.TopicGroupUpdated, "lifecycle.updated", Priority,
			func(ctx context.Context, ev social.GroupUpdated) error { return s.Update(ctx, ev.Group) }),
		events.On(socialBus, social.TopicGroupBeforeDelete, "lifecycle.before-delete", Priority,
			func(ctx context.Context, ev social.GroupBeforeDelete) error { return s.Delete(ctx, ev.Group) }),
		events.On(socialBus, social.TopicGroupParentChanged, "lifecycle.parent-changed", Priority,
			func(ctx context.Context, ev social.GroupParentChanged) error {
				return s.hier.NestingUpdate(ctx, ev.GroupID, ev.ParentID)
			}),
	}
	s.crmSubs = events.Set{
		events.On(crmBus, crm.TopicGroup, "lifecycle.crm-group", Priority, s.onCRMGroup),
	}
}

// Unregister removes every subscription made by Register.
func (s *Sync) Unregister() {
	for _, set := range []events.Set{s.createSubs, s.otherSubs, s.crmSubs} {
		set.Unsubscribe()
	}
	s.createSubs, s.otherSubs, s.crmSubs = nil, nil, nil
}

// onCRMGroup converts legacy member records as they are created in the CRM.
func (s *Sync) onCRMGroup(ctx context.Context, ev crm.GroupEvent) error {
	if ev.Op != crm.OpCreate {
		return nil
	}
	tag, err := synctag.Parse(ev.Group.Source)
	if err != nil || tag.Kind != synctag.KindLegacyMember {
		return nil
	}
	_, err = s.ConvertLegacyGroup(ctx, ev.Group)
	return err
}
