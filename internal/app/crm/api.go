package crm

import (
	"context"
	"errors"
)

var (
	// ErrAPI wraps error envelopes returned by the CRM.
	ErrAPI = errors.New("crm api error")
	// ErrValidation is returned before any call when params fail validation.
	ErrValidation = errors.New("crm params invalid")
	// ErrNotFound is returned by single-entity lookups.
	ErrNotFound = errors.New("crm entity not found")
)

// API is the CRM surface the sync core consumes.
//
// RemoveGroupContacts only touches rows that already exist: it sets their
// status to Removed and never creates a row.
type API interface {
	Groups(ctx context.Context, f GroupFilter) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	CreateGroup(ctx context.Context, p GroupParams) (Group, error)
	UpdateGroup(ctx context.Context, id int64, u GroupUpdate) (Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	GroupContacts(ctx context.Context, f GroupContactFilter) ([]GroupContact, error)
	AddGroupContacts(ctx context.Context, groupID int64, status Status, contactIDs ...int64) error
	RemoveGroupContacts(ctx context.Context, groupID int64, contactIDs ...int64) error

	Contacts(ctx context.Context, f ContactFilter) ([]Contact, error)
	CreateContact(ctx context.Context, p ContactParams) (Contact, error)

	UFMatches(ctx context.Context, f UFMatchFilter) ([]UFMatch, error)
	CreateUFMatch(ctx context.Context, p UFMatchParams) (UFMatch, error)

	GroupNestings(ctx context.Context, f NestingFilter) ([]GroupNesting, error)
	CreateGroupNesting(ctx context.Context, p NestingParams) (GroupNesting, error)
	DeleteGroupNesting(ctx context.Context, id int64) error

	OptionValues(ctx context.Context, f OptionValueFilter) ([]OptionValue, error)
	CreateOptionValue(ctx context.Context, p OptionValueParams) (OptionValue, error)
	UpdateOptionValue(ctx context.Context, id int64, p OptionValueParams) (OptionValue, error)
	DeleteOptionValue(ctx context.Context, id int64) error

	EntityRoles(ctx context.Context, f EntityRoleFilter) ([]EntityRole, error)
	CreateEntityRole(ctx context.Context, p EntityRoleParams) (EntityRole, error)
	DeleteEntityRole(ctx context.Context, id int64) error

	ACLs(ctx context.Context, f ACLFilter) ([]ACL, error)
	CreateACL(ctx context.Context, p ACLParams) (ACL, error)
	UpdateACL(ctx context.Context, id int64, p ACLParams) (ACL, error)
	DeleteACL(ctx context.Context, id int64) error

	// Transaction runs fn so that CRM writes made through the ctx it receives
	// are undone when fn returns an error. Nested calls join the outer one.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
