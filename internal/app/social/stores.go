package social

import (
	"context"

	"github.com/dalemusser/groupsync/internal/domain/models"
)

// Store interfaces are implemented by the Mongo stores under store/ and by
// the in-memory stores in socialtest. Lookups that miss return
// mongo.ErrNoDocuments.

// GroupStore persists Logical Groups.
type GroupStore interface {
	Create(ctx context.Context, g models.Group) (models.Group, error)
	GetByID(ctx context.Context, id int64) (models.Group, error)
	UpdateInfo(ctx context.Context, id int64, name, desc string) error
	SetParent(ctx context.Context, id, parentID int64) error
	SetStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) (int64, error)
	// List pages groups ordered by ID.
	List(ctx context.Context, limit, offset int) ([]models.Group, error)
	Children(ctx context.Context, parentID int64) ([]models.Group, error)
	Count(ctx context.Context) (int64, error)
}

// MembershipStore persists memberships, one document per (group, user).
type MembershipStore interface {
	Get(ctx context.Context, groupID, userID int64) (models.GroupMembership, error)
	Save(ctx context.Context, m models.GroupMembership) error
	Delete(ctx context.Context, groupID, userID int64) (int64, error)
	DeleteByGroup(ctx context.Context, groupID int64) (int64, error)
	ListByGroup(ctx context.Context, groupID int64) ([]models.GroupMembership, error)
	// CountByGroup counts memberships that are not banned.
	CountByGroup(ctx context.Context, groupID int64) (int64, error)
	// ListPage pages memberships that are not banned, ordered by
	// (group_id, user_id).
	ListPage(ctx context.Context, limit, offset int) ([]models.GroupMembership, error)
}

// MetaStore persists per-group key/value strings.
type MetaStore interface {
	Get(ctx context.Context, groupID int64, key string) (string, error)
	Set(ctx context.Context, groupID int64, key, value string) error
	Delete(ctx context.Context, groupID int64, key string) error
	DeleteGroup(ctx context.Context, groupID int64) error
}

// UserStore persists social accounts. Create reports duplicate usernames and
// emails with userstore.ErrDuplicateUsername and userstore.ErrDuplicateEmail.
type UserStore interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	SetEmail(ctx context.Context, id int64, email string) error
}

// TxRunner runs fn as one unit of work.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Stores bundles the store implementations for New. Tx may be nil, in which
// case multi-document writes run without a transaction.
type Stores struct {
	Groups      GroupStore
	Memberships MembershipStore
	Meta        MetaStore
	Users       UserStore
	Tx          TxRunner
}
