// Package social is the social groups platform: Logical Groups, memberships,
// group metadata and user accounts. Every mutation publishes a typed event
// on the social bus after it is stored.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	userstore "github.com/dalemusser/groupsync/internal/app/store/users"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/normalize"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid input")
	ErrAlreadyMember = errors.New("user is already a member of this group")
	ErrNotMember     = errors.New("user is not a member of this group")
	ErrBanned        = errors.New("user is banned from this group")
	ErrDuplicate     = errors.New("username or email already in use")
)

// Service is the social platform API.
type Service struct {
	groups  GroupStore
	members MembershipStore
	meta    MetaStore
	users   UserStore
	tx      TxRunner
	bus     *events.Bus
	log     *zap.Logger
}

// New builds a Service publishing on bus.
func New(st Stores, bus *events.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		groups:  st.Groups,
		members: st.Memberships,
		meta:    st.Meta,
		users:   st.Users,
		tx:      st.Tx,
		bus:     bus,
		log:     logger,
	}
}

// Bus returns the social event bus.
func (s *Service) Bus() *events.Bus { return s.bus }

// fire publishes ev. Listener failures are logged by the bus; the mutation
// they follow has already been stored.
func (s *Service) fire(ctx context.Context, ev events.Event) {
	_ = s.bus.Publish(ctx, ev)
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

/* -------------------------------- groups -------------------------------- */

// NewGroup is the input to CreateGroup.
type NewGroup struct {
	Name        string
	Description string
	CreatorID   int64
	ParentID    int64
}

// CreateGroup stores a group, makes the creator its admin and publishes
// GroupCreated.
func (s *Service) CreateGroup(ctx context.Context, in NewGroup) (models.Group, error) {
	name := normalize.Name(in.Name)
	if name == "" {
		return models.Group{}, fmt.Errorf("%w: group name required", ErrInvalid)
	}
	if in.CreatorID != 0 {
		if _, err := s.users.GetByID(ctx, in.CreatorID); err != nil {
			return models.Group{}, notFound(err, "user", in.CreatorID)
		}
	}
	if in.ParentID != 0 {
		if _, err := s.groups.GetByID(ctx, in.ParentID); err != nil {
			return models.Group{}, notFound(err, "parent group", in.ParentID)
		}
	}

	g, err := s.groups.Create(ctx, models.Group{
		Name:        name,
		Description: in.Description,
		CreatorID:   in.CreatorID,
		ParentID:    in.ParentID,
	})
	if err != nil {
		return models.Group{}, err
	}

	if in.CreatorID != 0 {
		if err := s.members.Save(ctx, models.GroupMembership{
			GroupID:     g.ID,
			UserID:      in.CreatorID,
			IsAdmin:     true,
			IsConfirmed: true,
		}); err != nil {
			if _, derr := s.groups.Delete(ctx, g.ID); derr != nil {
				s.log.Error("compensating group delete failed", zap.Int64("group_id", g.ID), zap.Error(derr))
			}
			return models.Group{}, err
		}
	}

	s.log.Info("group created", zap.Int64("group_id", g.ID), zap.String("name", g.Name))
	s.fire(ctx, GroupCreated{Group: g})
	return g, nil
}

// Group loads one group.
func (s *Service) Group(ctx context.Context, id int64) (models.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return models.Group{}, notFound(err, "group", id)
	}
	return g, nil
}

// Groups pages groups ordered by ID.
func (s *Service) Groups(ctx context.Context, limit, offset int) ([]models.Group, error) {
	return s.groups.List(ctx, limit, offset)
}

// Children lists the direct children of parentID (0 lists top-level groups).
func (s *Service) Children(ctx context.Context, parentID int64) ([]models.Group, error) {
	return s.groups.Children(ctx, parentID)
}

// GroupCount counts all groups.
func (s *Service) GroupCount(ctx context.Context) (int64, error) {
	return s.groups.Count(ctx)
}

// UpdateDetails changes name and description and publishes
// GroupDetailsUpdated.
func (s *Service) UpdateDetails(ctx context.Context, id int64, name, desc string) (models.Group, error) {
	old, err := s.Group(ctx, id)
	if err != nil {
		return models.Group{}, err
	}
	name = normalize.Name(name)
	if name == "" {
		name = old.Name
	}
	if err := s.groups.UpdateInfo(ctx, id, name, desc); err != nil {
		return models.Group{}, err
	}
	g, err := s.Group(ctx, id)
	if err != nil {
		return models.Group{}, err
	}
	s.fire(ctx, GroupDetailsUpdated{Group: g, Old: old})
	return g, nil
}

// SetStatus changes the group status and publishes GroupUpdated.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (models.Group, error) {
	if status != models.GroupActive && status != models.GroupInactive {
		return models.Group{}, fmt.Errorf("%w: status %q", ErrInvalid, status)
	}
	if _, err := s.Group(ctx, id); err != nil {
		return models.Group{}, err
	}
	if err := s.groups.SetStatus(ctx, id, status); err != nil {
		return models.Group{}, err
	}
	g, err := s.Group(ctx, id)
	if err != nil {
		return models.Group{}, err
	}
	s.fire(ctx, GroupUpdated{Group: g})
	return g, nil
}

// SetParent moves a group under parentID (0 = top level) and publishes
// GroupParentChanged. Moving a group below itself or a descendant is
// rejected.
func (s *Service) SetParent(ctx context.Context, id, parentID int64) error {
	g, err := s.Group(ctx, id)
	if err != nil {
		return err
	}
	if g.ParentID == parentID {
		return nil
	}
	for cur := parentID; cur != 0; {
		if cur == id {
			return fmt.Errorf("%w: group %d cannot be nested under its own subtree", ErrInvalid, id)
		}
		p, err := s.Group(ctx, cur)
		if err != nil {
			return err
		}
		cur = p.ParentID
	}
	if err := s.groups.SetParent(ctx, id, parentID); err != nil {
		return err
	}
	s.fire(ctx, GroupParentChanged{GroupID: id, OldParentID: g.ParentID, ParentID: parentID})
	return nil
}

// DeleteGroup publishes GroupBeforeDelete, lifts the group's children to the
// top level, and removes the group with its memberships and metadata.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	g, err := s.Group(ctx, id)
	if err != nil {
		return err
	}
	s.fire(ctx, GroupBeforeDelete{Group: g})

	children, err := s.groups.Children(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.SetParent(ctx, c.ID, 0); err != nil {
			s.log.Warn("detach child group failed", zap.Int64("group_id", c.ID), zap.Error(err))
		}
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.members.DeleteByGroup(ctx, id); err != nil {
			return err
		}
		if err := s.meta.DeleteGroup(ctx, id); err != nil {
			return err
		}
		_, err := s.groups.Delete(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("group deleted", zap.Int64("group_id", id))
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx(ctx, fn)
}

/* ------------------------------ group meta ------------------------------ */

// Meta reads a group meta value. ok is false when unset.
func (s *Service) Meta(ctx context.Context, groupID int64, key string) (value string, ok bool, err error) {
	v, err := s.meta.Get(ctx, groupID, key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetMeta writes a group meta value.
func (s *Service) SetMeta(ctx context.Context, groupID int64, key, value string) error {
	return s.meta.Set(ctx, groupID, key, value)
}

// DeleteMeta removes a group meta value.
func (s *Service) DeleteMeta(ctx context.Context, groupID int64, key string) error {
	return s.meta.Delete(ctx, groupID, key)
}

/* -------------------------------- users --------------------------------- */

// CreateUser stores an account. Username and email must be unused.
func (s *Service) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return models.User{}, fmt.Errorf("%w: username required", ErrInvalid)
	}
	created, err := s.users.Create(ctx, u)
	if errors.Is(err, userstore.ErrDuplicateUsername) || errors.Is(err, userstore.ErrDuplicateEmail) {
		return models.User{}, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("user created", zap.Int64("user_id", created.ID), zap.String("username", created.Username))
	return created, nil
}

// User loads an account.
func (s *Service) User(ctx context.Context, id int64) (models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, "user", id)
	}
	return u, nil
}

// UserByEmail loads an account by email.
func (s *Service) UserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := s.users.GetByEmail(ctx, normalize.Email(email))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
	}
	return u, err
}

// UsernameTaken reports whether a username is in use.
func (s *Service) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

// SetUserEmail sets an account's email.
func (s *Service) SetUserEmail(ctx context.Context, id int64, email string) error {
	err := s.users.SetEmail(ctx, id, normalize.Email(email))
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return notFound(err, "user", id)
}
