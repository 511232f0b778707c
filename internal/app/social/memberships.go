package social

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Membership loads one membership. ErrNotFound when the user has none.
func (s *Service) Membership(ctx context.Context, groupID, userID int64) (models.GroupMembership, error) {
	m, err := s.members.Get(ctx, groupID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.GroupMembership{}, fmt.Errorf("membership %d/%d: %w", groupID, userID, ErrNotFound)
	}
	return m, err
}

// Members lists every membership of a group, banned ones included.
func (s *Service) Members(ctx context.Context, groupID int64) ([]models.GroupMembership, error) {
	return s.members.ListByGroup(ctx, groupID)
}

// MemberCount counts memberships that are not banned.
func (s *Service) MemberCount(ctx context.Context, groupID int64) (int64, error) {
	return s.members.CountByGroup(ctx, groupID)
}

// MembershipPage pages non-banned memberships ordered by (group, user).
func (s *Service) MembershipPage(ctx context.Context, limit, offset int) ([]models.GroupMembership, error) {
	return s.members.ListPage(ctx, limit, offset)
}

func (s *Service) requireGroupAndUser(ctx context.Context, groupID, userID int64) error {
	if _, err := s.Group(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.User(ctx, userID); err != nil {
		return err
	}
	return nil
}

// Join adds a confirmed plain membership and publishes MemberJoined.
func (s *Service) Join(ctx context.Context, groupID, userID int64) error {
	if err := s.requireGroupAndUser(ctx, groupID, userID); err != nil {
		return err
	}
	m, err := s.Membership(ctx, groupID, userID)
	switch {
	case err == nil && m.IsBanned:
		return ErrBanned
	case err == nil && m.IsConfirmed:
		return ErrAlreadyMember
	case err == nil:
		// An outstanding invite: joining confirms it.
		m.IsConfirmed = true
	case errors.Is(err, ErrNotFound):
		m = models.GroupMembership{GroupID: groupID, UserID: userID, IsConfirmed: true}
	default:
		return err
	}
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.log.Debug("member joined", zap.Int64("group_id", groupID), zap.Int64("user_id", userID))
	s.fire(ctx, MemberJoined{GroupID: groupID, UserID: userID})
	return nil
}

// Invite records an unconfirmed membership. No event is published until the
// invite is accepted.
func (s *Service) Invite(ctx context.Context, groupID, userID int64) error {
	if err := s.requireGroupAndUser(ctx, groupID, userID); err != nil {
		return err
	}
	if _, err := s.Membership(ctx, groupID, userID); err == nil {
		return ErrAlreadyMember
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.members.Save(ctx, models.GroupMembership{GroupID: groupID, UserID: userID, InviteSent: true})
}

// AcceptInvite confirms an invite and publishes InviteAccepted.
func (s *Service) AcceptInvite(ctx context.Context, groupID, userID int64) error {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if m.IsConfirmed {
		return ErrAlreadyMember
	}
	m.IsConfirmed = true
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.fire(ctx, InviteAccepted{GroupID: groupID, UserID: userID})
	return nil
}

// Leave deletes the caller's own membership and publishes MemberLeft.
func (s *Service) Leave(ctx context.Context, groupID, userID int64) error {
	n, err := s.members.Delete(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotMember
	}
	s.fire(ctx, MemberLeft{GroupID: groupID, UserID: userID})
	return nil
}

// Remove deletes someone's membership and publishes MemberRemoved.
func (s *Service) Remove(ctx context.Context, groupID, userID int64) error {
	n, err := s.members.Delete(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotMember
	}
	s.fire(ctx, MemberRemoved{GroupID: groupID, UserID: userID})
	return nil
}

// Promote raises a member to admin or mod and publishes MemberPromoted.
func (s *Service) Promote(ctx context.Context, groupID, userID int64, role string) error {
	if role != models.RoleAdmin && role != models.RoleMod {
		return fmt.Errorf("%w: role %q", ErrInvalid, role)
	}
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if m.IsBanned {
		return ErrBanned
	}
	from := m.Role()
	if from == role {
		return nil
	}
	m.IsConfirmed = true
	m.IsAdmin = role == models.RoleAdmin
	m.IsMod = role == models.RoleMod
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.fire(ctx, MemberPromoted{GroupID: groupID, UserID: userID, Role: role, From: from})
	return nil
}

// Demote lowers an admin or mod to plain member and publishes MemberDemoted.
func (s *Service) Demote(ctx context.Context, groupID, userID int64) error {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	from := m.Role()
	if from != models.RoleAdmin && from != models.RoleMod {
		return nil
	}
	m.IsAdmin, m.IsMod = false, false
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.fire(ctx, MemberDemoted{GroupID: groupID, UserID: userID, From: from})
	return nil
}

// Ban marks a membership banned, dropping any admin or mod role, and
// publishes MemberBanned.
func (s *Service) Ban(ctx context.Context, groupID, userID int64) error {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if m.IsBanned {
		return nil
	}
	wasAdmin := m.IsAdmin
	m.IsBanned = true
	m.IsAdmin, m.IsMod = false, false
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.fire(ctx, MemberBanned{GroupID: groupID, UserID: userID, WasAdmin: wasAdmin})
	return nil
}

// Unban lifts a ban and publishes MemberUnbanned.
func (s *Service) Unban(ctx context.Context, groupID, userID int64) error {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !m.IsBanned {
		return nil
	}
	m.IsBanned = false
	if err := s.members.Save(ctx, m); err != nil {
		return err
	}
	s.fire(ctx, MemberUnbanned{GroupID: groupID, UserID: userID})
	return nil
}

// BulkSave applies several role assignments from the group admin screen and
// publishes one MembersBulkSaved with the rows that changed. Role is one of
// models.RoleAdmin, models.RoleMod, models.RoleMember.
func (s *Service) BulkSave(ctx context.Context, groupID int64, roles map[int64]string) ([]RoleChange, error) {
	ids := make([]int64, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var changes []RoleChange
	err := s.inTx(ctx, func(ctx context.Context) error {
		changes = changes[:0]
		for _, userID := range ids {
			role := roles[userID]
			if role != models.RoleAdmin && role != models.RoleMod && role != models.RoleMember {
				return fmt.Errorf("%w: role %q", ErrInvalid, role)
			}
			m, err := s.Membership(ctx, groupID, userID)
			if err != nil {
				return err
			}
			if m.IsBanned || m.Role() == role {
				continue
			}
			from := m.Role()
			m.IsConfirmed = true
			m.IsAdmin = role == models.RoleAdmin
			m.IsMod = role == models.RoleMod
			if err := s.members.Save(ctx, m); err != nil {
				return err
			}
			changes = append(changes, RoleChange{UserID: userID, From: from, To: role})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		s.fire(ctx, MembersBulkSaved{GroupID: groupID, Changes: changes})
	}
	return changes, nil
}
