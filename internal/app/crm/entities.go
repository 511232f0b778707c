package crm

import (
	"context"
	"fmt"
)

const (
	entityGroup        = "Group"
	entityGroupContact = "GroupContact"
	entityContact      = "Contact"
	entityUFMatch      = "UFMatch"
	entityGroupNesting = "GroupNesting"
	entityOptionValue  = "OptionValue"
	entityEntityRole   = "EntityRole"
	entityACL          = "Acl"
)

type idParams struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

func get[T any](ctx context.Context, c *Client, entity string, params map[string]any) ([]T, error) {
	var out []T
	if err := c.call(ctx, entity, "get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func create[T any](ctx context.Context, c *Client, entity string, params any) (T, error) {
	var out []T
	var zero T
	if err := c.call(ctx, entity, "create", params, &out); err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%w: %s.create returned no values", ErrAPI, entity)
	}
	return out[0], nil
}

func (c *Client) remove(ctx context.Context, entity string, id int64) error {
	return c.call(ctx, entity, "delete", idParams{ID: id}, nil)
}

// Groups implements API.
func (c *Client) Groups(ctx context.Context, f GroupFilter) ([]Group, error) {
	return get[Group](ctx, c, entityGroup, f.params())
}

// GetGroup implements API.
func (c *Client) GetGroup(ctx context.Context, id int64) (Group, error) {
	gs, err := c.Groups(ctx, GroupFilter{IDs: []int64{id}})
	if err != nil {
		return Group{}, err
	}
	if len(gs) == 0 {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	return gs[0], nil
}

// CreateGroup implements API.
func (c *Client) CreateGroup(ctx context.Context, p GroupParams) (Group, error) {
	g, err := create[Group](ctx, c, entityGroup, p)
	if err != nil {
		return Group{}, err
	}
	c.track(ctx, entityGroup, g.ID, func(ctx context.Context) error { return c.DeleteGroup(ctx, g.ID) })
	return g, nil
}

// UpdateGroup implements API.
func (c *Client) UpdateGroup(ctx context.Context, id int64, u GroupUpdate) (Group, error) {
	return create[Group](ctx, c, entityGroup, struct {
		idParams
		GroupUpdate
	}{idParams{ID: id}, u})
}

// DeleteGroup implements API.
func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	return c.remove(ctx, entityGroup, id)
}

// GroupContacts implements API.
func (c *Client) GroupContacts(ctx context.Context, f GroupContactFilter) ([]GroupContact, error) {
	return get[GroupContact](ctx, c, entityGroupContact, f.params())
}

// AddGroupContacts implements API.
func (c *Client) AddGroupContacts(ctx context.Context, groupID int64, status Status, contactIDs ...int64) error {
	if len(contactIDs) == 0 {
		return nil
	}
	p := GroupContactParams{GroupID: groupID, ContactIDs: contactIDs, Status: status}
	if err := c.call(ctx, entityGroupContact, "create", p, nil); err != nil {
		return err
	}
	c.record(groupID, status, contactIDs)
	return nil
}

// RemoveGroupContacts implements API. The CRM soft-deletes: rows move to
// Removed.
func (c *Client) RemoveGroupContacts(ctx context.Context, groupID int64, contactIDs ...int64) error {
	if len(contactIDs) == 0 {
		return nil
	}
	p := GroupContactParams{GroupID: groupID, ContactIDs: contactIDs, Status: StatusRemoved}
	if err := c.call(ctx, entityGroupContact, "delete", p, nil); err != nil {
		return err
	}
	c.record(groupID, StatusRemoved, contactIDs)
	return nil
}

func (c *Client) record(groupID int64, status Status, contactIDs []int64) {
	if c.recorder != nil {
		c.recorder.RecordGroupContacts(groupID, status, contactIDs)
	}
}

// Contacts implements API.
func (c *Client) Contacts(ctx context.Context, f ContactFilter) ([]Contact, error) {
	return get[Contact](ctx, c, entityContact, f.params())
}

// CreateContact implements API.
func (c *Client) CreateContact(ctx context.Context, p ContactParams) (Contact, error) {
	ct, err := create[Contact](ctx, c, entityContact, p)
	if err != nil {
		return Contact{}, err
	}
	if ct.Email == "" {
		ct.Email = p.Email
	}
	return ct, nil
}

// UFMatches implements API.
func (c *Client) UFMatches(ctx context.Context, f UFMatchFilter) ([]UFMatch, error) {
	return get[UFMatch](ctx, c, entityUFMatch, f.params())
}

// CreateUFMatch implements API.
func (c *Client) CreateUFMatch(ctx context.Context, p UFMatchParams) (UFMatch, error) {
	return create[UFMatch](ctx, c, entityUFMatch, p)
}

// GroupNestings implements API.
func (c *Client) GroupNestings(ctx context.Context, f NestingFilter) ([]GroupNesting, error) {
	return get[GroupNesting](ctx, c, entityGroupNesting, f.params())
}

// CreateGroupNesting implements API.
func (c *Client) CreateGroupNesting(ctx context.Context, p NestingParams) (GroupNesting, error) {
	n, err := create[GroupNesting](ctx, c, entityGroupNesting, p)
	if err != nil {
		return GroupNesting{}, err
	}
	c.track(ctx, entityGroupNesting, n.ID, func(ctx context.Context) error { return c.DeleteGroupNesting(ctx, n.ID) })
	return n, nil
}

// DeleteGroupNesting implements API.
func (c *Client) DeleteGroupNesting(ctx context.Context, id int64) error {
	return c.remove(ctx, entityGroupNesting, id)
}

// OptionValues implements API.
func (c *Client) OptionValues(ctx context.Context, f OptionValueFilter) ([]OptionValue, error) {
	return get[OptionValue](ctx, c, entityOptionValue, f.params())
}

// CreateOptionValue implements API.
func (c *Client) CreateOptionValue(ctx context.Context, p OptionValueParams) (OptionValue, error) {
	v, err := create[OptionValue](ctx, c, entityOptionValue, p)
	if err != nil {
		return OptionValue{}, err
	}
	c.track(ctx, entityOptionValue, v.ID, func(ctx context.Context) error { return c.DeleteOptionValue(ctx, v.ID) })
	return v, nil
}

// UpdateOptionValue implements API.
func (c *Client) UpdateOptionValue(ctx context.Context, id int64, p OptionValueParams) (OptionValue, error) {
	return create[OptionValue](ctx, c, entityOptionValue, struct {
		idParams
		OptionValueParams
	}{idParams{ID: id}, p})
}

// DeleteOptionValue implements API.
func (c *Client) DeleteOptionValue(ctx context.Context, id int64) error {
	return c.remove(ctx, entityOptionValue, id)
}

// EntityRoles implements API.
func (c *Client) EntityRoles(ctx context.Context, f EntityRoleFilter) ([]EntityRole, error) {
	return get[EntityRole](ctx, c, entityEntityRole, f.params())
}

// CreateEntityRole implements API.
func (c *Client) CreateEntityRole(ctx context.Context, p EntityRoleParams) (EntityRole, error) {
	r, err := create[EntityRole](ctx, c, entityEntityRole, p)
	if err != nil {
		return EntityRole{}, err
	}
	c.track(ctx, entityEntityRole, r.ID, func(ctx context.Context) error { return c.DeleteEntityRole(ctx, r.ID) })
	return r, nil
}

// DeleteEntityRole implements API.
func (c *Client) DeleteEntityRole(ctx context.Context, id int64) error {
	return c.remove(ctx, entityEntityRole, id)
}

// ACLs implements API.
func (c *Client) ACLs(ctx context.Context, f ACLFilter) ([]ACL, error) {
	return get[ACL](ctx, c, entityACL, f.params())
}

// CreateACL implements API.
func (c *Client) CreateACL(ctx context.Context, p ACLParams) (ACL, error) {
	a, err := create[ACL](ctx, c, entityACL, p)
	if err != nil {
		return ACL{}, err
	}
	c.track(ctx, entityACL, a.ID, func(ctx context.Context) error { return c.DeleteACL(ctx, a.ID) })
	return a, nil
}

// UpdateACL implements API.
func (c *Client) UpdateACL(ctx context.Context, id int64, p ACLParams) (ACL, error) {
	return create[ACL](ctx, c, entityACL, struct {
		idParams
		ACLParams
	}{idParams{ID: id}, p})
}

// DeleteACL implements API.
func (c *Client) DeleteACL(ctx context.Context, id int64) error {
	return c.remove(ctx, entityACL, id)
}
