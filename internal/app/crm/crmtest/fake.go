// Package crmtest provides an in-memory crm.API for tests. It fires the same
// CRM events the webhook intake would publish, synchronously, on the bus it
// is given.
package crmtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/validation"
)

type pair struct{ group, contact int64 }

type state struct {
	nextID       int64
	groups       map[int64]crm.Group
	rows         map[int64]crm.GroupContact
	rowIndex     map[pair]int64
	contacts     map[int64]crm.Contact
	ufmatches    map[int64]crm.UFMatch
	nestings     map[int64]crm.GroupNesting
	optionValues map[int64]crm.OptionValue
	entityRoles  map[int64]crm.EntityRole
	acls         map[int64]crm.ACL
}

func newState() state {
	return state{
		groups:       map[int64]crm.Group{},
		rows:         map[int64]crm.GroupContact{},
		rowIndex:     map[pair]int64{},
		contacts:     map[int64]crm.Contact{},
		ufmatches:    map[int64]crm.UFMatch{},
		nestings:     map[int64]crm.GroupNesting{},
		optionValues: map[int64]crm.OptionValue{},
		entityRoles:  map[int64]crm.EntityRole{},
		acls:         map[int64]crm.ACL{},
	}
}

func (s state) clone() state {
	return state{
		nextID:       s.nextID,
		groups:       maps.Clone(s.groups),
		rows:         maps.Clone(s.rows),
		rowIndex:     maps.Clone(s.rowIndex),
		contacts:     maps.Clone(s.contacts),
		ufmatches:    maps.Clone(s.ufmatches),
		nestings:     maps.Clone(s.nestings),
		optionValues: maps.Clone(s.optionValues),
		entityRoles:  maps.Clone(s.entityRoles),
		acls:         maps.Clone(s.acls),
	}
}

// Fake is an in-memory CRM.
type Fake struct {
	bus *events.Bus

	mu    sync.Mutex
	st    state
	fail  map[string]failure
	calls map[string]int
}

type failure struct {
	err  error
	skip int
}

var _ crm.API = (*Fake)(nil)

// New returns an empty Fake. bus may be nil.
func New(bus *events.Bus) *Fake {
	return &Fake{
		bus:   bus,
		st:    newState(),
		fail:  map[string]failure{},
		calls: map[string]int{},
	}
}

// FailOn makes the next entity.action call return err.
func (f *Fake) FailOn(entity, action string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[entity+"."+action] = failure{err: err}
}

// FailOnNth makes the nth entity.action call from now return err.
func (f *Fake) FailOnNth(entity, action string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[entity+"."+action] = failure{err: err, skip: n - 1}
}

// Calls returns how many times entity.action was called.
func (f *Fake) Calls(entity, action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[entity+"."+action]
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
}

// begin counts the call and returns an injected failure. Caller holds mu.
func (f *Fake) begin(entity, action string, params any) error {
	key := entity + "." + action
	f.calls[key]++
	if fl, ok := f.fail[key]; ok {
		if fl.skip > 0 {
			fl.skip--
			f.fail[key] = fl
		} else {
			delete(f.fail, key)
			return fl.err
		}
	}
	if params != nil {
		if err := validation.Struct(params); err != nil {
			return fmt.Errorf("%w: %s: %v", crm.ErrValidation, key, err)
		}
	}
	return nil
}

func (f *Fake) id() int64 {
	f.st.nextID++
	return f.st.nextID
}

func (f *Fake) publish(ctx context.Context, evs ...events.Event) {
	if f.bus == nil {
		return
	}
	for _, ev := range evs {
		_ = f.bus.Publish(ctx, ev)
	}
}

func sorted[T any](m map[int64]T, keep func(T) bool) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if keep(m[id]) {
			out = append(out, m[id])
		}
	}
	return out
}

type txKey struct{}

// Transaction implements crm.API by snapshotting state and restoring it when
// fn fails. Events already published are not retracted.
func (f *Fake) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	snap := f.st.clone()
	f.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		f.mu.Lock()
		f.st = snap
		f.mu.Unlock()
		return err
	}
	return nil
}

// Groups implements crm.API.
func (f *Fake) Groups(ctx context.Context, flt crm.GroupFilter) ([]crm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Group", "get", nil); err != nil {
		return nil, err
	}
	return crm.Apply(sorted(f.st.groups, flt.Matches), flt.Page), nil
}

// GetGroup implements crm.API.
func (f *Fake) GetGroup(ctx context.Context, id int64) (crm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Group", "get", nil); err != nil {
		return crm.Group{}, err
	}
	g, ok := f.st.groups[id]
	if !ok {
		return crm.Group{}, fmt.Errorf("group %d: %w", id, crm.ErrNotFound)
	}
	return g, nil
}

// CreateGroup implements crm.API.
func (f *Fake) CreateGroup(ctx context.Context, p crm.GroupParams) (crm.Group, error) {
	f.mu.Lock()
	if err := f.begin("Group", "create", p); err != nil {
		f.mu.Unlock()
		return crm.Group{}, err
	}
	g := crm.Group{
		ID:          f.id(),
		Name:        p.Name,
		Title:       p.Title,
		Description: p.Description,
		Source:      p.Source,
		GroupType:   p.GroupType,
		IsActive:    p.IsActive,
		Visibility:  p.Visibility,
	}
	if g.Name == "" {
		g.Name = fmt.Sprintf("group_%d", g.ID)
	}
	f.st.groups[g.ID] = g
	f.mu.Unlock()

	f.publish(ctx, crm.GroupEvent{Op: crm.OpCreate, Group: g})
	return g, nil
}

// UpdateGroup implements crm.API.
func (f *Fake) UpdateGroup(ctx context.Context, id int64, u crm.GroupUpdate) (crm.Group, error) {
	f.mu.Lock()
	if err := f.begin("Group", "create", u); err != nil {
		f.mu.Unlock()
		return crm.Group{}, err
	}
	g, ok := f.st.groups[id]
	if !ok {
		f.mu.Unlock()
		return crm.Group{}, fmt.Errorf("%w: Group.create: no group %d", crm.ErrAPI, id)
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.Source != nil {
		g.Source = *u.Source
	}
	if u.IsActive != nil {
		g.IsActive = *u.IsActive
	}
	f.st.groups[id] = g
	f.mu.Unlock()

	f.publish(ctx, crm.GroupEvent{Op: crm.OpEdit, Group: g})
	return g, nil
}

// DeleteGroup implements crm.API. Nesting edges touching the group and its
// membership rows go with it.
func (f *Fake) DeleteGroup(ctx context.Context, id int64) error {
	f.mu.Lock()
	if err := f.begin("Group", "delete", nil); err != nil {
		f.mu.Unlock()
		return err
	}
	g, ok := f.st.groups[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: Group.delete: no group %d", crm.ErrAPI, id)
	}
	delete(f.st.groups, id)
	for nid, n := range f.st.nestings {
		if n.ParentGroupID == id || n.ChildGroupID == id {
			delete(f.st.nestings, nid)
		}
	}
	for rid, r := range f.st.rows {
		if r.GroupID == id {
			delete(f.st.rows, rid)
			delete(f.st.rowIndex, pair{r.GroupID, r.ContactID})
		}
	}
	f.mu.Unlock()

	f.publish(ctx, crm.GroupEvent{Op: crm.OpDelete, Group: g})
	return nil
}

// GroupContacts implements crm.API.
func (f *Fake) GroupContacts(ctx context.Context, flt crm.GroupContactFilter) ([]crm.GroupContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GroupContact", "get", nil); err != nil {
		return nil, err
	}
	return crm.Apply(sorted(f.st.rows, flt.Matches), flt.Page), nil
}

// AddGroupContacts implements crm.API. New rows fire a create event,
// re-activated Removed rows fire an edit event.
func (f *Fake) AddGroupContacts(ctx context.Context, groupID int64, status crm.Status, contactIDs ...int64) error {
	if len(contactIDs) == 0 {
		return nil
	}
	f.mu.Lock()
	if err := f.begin("GroupContact", "create", crm.GroupContactParams{GroupID: groupID, ContactIDs: contactIDs, Status: status}); err != nil {
		f.mu.Unlock()
		return err
	}
	if _, ok := f.st.groups[groupID]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: GroupContact.create: no group %d", crm.ErrAPI, groupID)
	}
	var created, rejoined []int64
	for _, cid := range contactIDs {
		key := pair{groupID, cid}
		rid, ok := f.st.rowIndex[key]
		if !ok {
			rid = f.id()
			f.st.rowIndex[key] = rid
			f.st.rows[rid] = crm.GroupContact{ID: rid, GroupID: groupID, ContactID: cid, Status: status}
			created = append(created, cid)
			continue
		}
		row := f.st.rows[rid]
		if row.Status == status {
			continue
		}
		wasRemoved := row.Status == crm.StatusRemoved
		row.Status = status
		f.st.rows[rid] = row
		if wasRemoved {
			rejoined = append(rejoined, cid)
		}
	}
	f.mu.Unlock()

	if len(created) > 0 {
		f.publish(ctx, crm.GroupContactEvent{Op: crm.OpCreate, GroupID: groupID, ContactIDs: created})
	}
	if len(rejoined) > 0 {
		f.publish(ctx, crm.GroupContactEvent{Op: crm.OpEdit, GroupID: groupID, ContactIDs: rejoined})
	}
	return nil
}

// RemoveGroupContacts implements crm.API.
func (f *Fake) RemoveGroupContacts(ctx context.Context, groupID int64, contactIDs ...int64) error {
	if len(contactIDs) == 0 {
		return nil
	}
	f.mu.Lock()
	if err := f.begin("GroupContact", "delete", crm.GroupContactParams{GroupID: groupID, ContactIDs: contactIDs, Status: crm.StatusRemoved}); err != nil {
		f.mu.Unlock()
		return err
	}
	var removed []int64
	for _, cid := range contactIDs {
		rid, ok := f.st.rowIndex[pair{groupID, cid}]
		if !ok {
			continue
		}
		row := f.st.rows[rid]
		if row.Status == crm.StatusRemoved {
			continue
		}
		row.Status = crm.StatusRemoved
		f.st.rows[rid] = row
		removed = append(removed, cid)
	}
	f.mu.Unlock()

	if len(removed) > 0 {
		f.publish(ctx, crm.GroupContactEvent{Op: crm.OpDelete, GroupID: groupID, ContactIDs: removed})
	}
	return nil
}

// Contacts implements crm.API.
func (f *Fake) Contacts(ctx context.Context, flt crm.ContactFilter) ([]crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Contact", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.contacts, flt.Matches), nil
}

// CreateContact implements crm.API.
func (f *Fake) CreateContact(ctx context.Context, p crm.ContactParams) (crm.Contact, error) {
	f.mu.Lock()
	if err := f.begin("Contact", "create", p); err != nil {
		f.mu.Unlock()
		return crm.Contact{}, err
	}
	c := crm.Contact{
		ID:          f.id(),
		ContactType: p.ContactType,
		DisplayName: p.DisplayName,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
	}
	f.st.contacts[c.ID] = c
	f.mu.Unlock()

	if c.Email != "" {
		f.publish(ctx, crm.EmailEvent{ContactID: c.ID, Email: c.Email})
	}
	return c, nil
}

// SetContactEmail writes a contact's email and fires the email event, the
// way a CRM user editing the contact would.
func (f *Fake) SetContactEmail(ctx context.Context, contactID int64, email string) error {
	f.mu.Lock()
	c, ok := f.st.contacts[contactID]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: no contact %d", crm.ErrAPI, contactID)
	}
	c.Email = email
	f.st.contacts[contactID] = c
	f.mu.Unlock()

	f.publish(ctx, crm.EmailEvent{ContactID: contactID, Email: email})
	return nil
}

// UFMatches implements crm.API.
func (f *Fake) UFMatches(ctx context.Context, flt crm.UFMatchFilter) ([]crm.UFMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UFMatch", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.ufmatches, flt.Matches), nil
}

// CreateUFMatch implements crm.API. A user or contact can be linked once.
func (f *Fake) CreateUFMatch(ctx context.Context, p crm.UFMatchParams) (crm.UFMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UFMatch", "create", p); err != nil {
		return crm.UFMatch{}, err
	}
	for _, m := range f.st.ufmatches {
		if m.UFID == p.UFID || m.ContactID == p.ContactID {
			return crm.UFMatch{}, fmt.Errorf("%w: UFMatch.create: duplicate link uf_id=%d contact_id=%d", crm.ErrAPI, p.UFID, p.ContactID)
		}
	}
	if _, ok := f.st.contacts[p.ContactID]; !ok {
		return crm.UFMatch{}, fmt.Errorf("%w: UFMatch.create: no contact %d", crm.ErrAPI, p.ContactID)
	}
	m := crm.UFMatch{ID: f.id(), UFID: p.UFID, UFName: p.UFName, ContactID: p.ContactID}
	f.st.ufmatches[m.ID] = m
	return m, nil
}

// GroupNestings implements crm.API.
func (f *Fake) GroupNestings(ctx context.Context, flt crm.NestingFilter) ([]crm.GroupNesting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GroupNesting", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.nestings, flt.Matches), nil
}

// CreateGroupNesting implements crm.API.
func (f *Fake) CreateGroupNesting(ctx context.Context, p crm.NestingParams) (crm.GroupNesting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GroupNesting", "create", p); err != nil {
		return crm.GroupNesting{}, err
	}
	for _, id := range []int64{p.ParentGroupID, p.ChildGroupID} {
		if _, ok := f.st.groups[id]; !ok {
			return crm.GroupNesting{}, fmt.Errorf("%w: GroupNesting.create: no group %d", crm.ErrAPI, id)
		}
	}
	n := crm.GroupNesting{ID: f.id(), ParentGroupID: p.ParentGroupID, ChildGroupID: p.ChildGroupID}
	f.st.nestings[n.ID] = n
	return n, nil
}

// DeleteGroupNesting implements crm.API.
func (f *Fake) DeleteGroupNesting(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GroupNesting", "delete", nil); err != nil {
		return err
	}
	if _, ok := f.st.nestings[id]; !ok {
		return fmt.Errorf("%w: GroupNesting.delete: no nesting %d", crm.ErrAPI, id)
	}
	delete(f.st.nestings, id)
	return nil
}

// OptionValues implements crm.API.
func (f *Fake) OptionValues(ctx context.Context, flt crm.OptionValueFilter) ([]crm.OptionValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("OptionValue", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.optionValues, flt.Matches), nil
}

// CreateOptionValue implements crm.API. An empty Value is assigned the next
// free number in the option group.
func (f *Fake) CreateOptionValue(ctx context.Context, p crm.OptionValueParams) (crm.OptionValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("OptionValue", "create", p); err != nil {
		return crm.OptionValue{}, err
	}
	v := crm.OptionValue{
		ID:          f.id(),
		OptionGroup: p.OptionGroup,
		Name:        p.Name,
		Label:       p.Label,
		Value:       p.Value,
		IsActive:    p.IsActive,
	}
	if v.Value == "" {
		n := 0
		for _, ov := range f.st.optionValues {
			if ov.OptionGroup == p.OptionGroup {
				n++
			}
		}
		v.Value = fmt.Sprintf("%d", n+1)
	}
	f.st.optionValues[v.ID] = v
	return v, nil
}

// UpdateOptionValue implements crm.API.
func (f *Fake) UpdateOptionValue(ctx context.Context, id int64, p crm.OptionValueParams) (crm.OptionValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("OptionValue", "create", p); err != nil {
		return crm.OptionValue{}, err
	}
	v, ok := f.st.optionValues[id]
	if !ok {
		return crm.OptionValue{}, fmt.Errorf("%w: OptionValue.create: no option value %d", crm.ErrAPI, id)
	}
	v.Name, v.Label, v.IsActive = p.Name, p.Label, p.IsActive
	if p.Value != "" {
		v.Value = p.Value
	}
	f.st.optionValues[id] = v
	return v, nil
}

// DeleteOptionValue implements crm.API.
func (f *Fake) DeleteOptionValue(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("OptionValue", "delete", nil); err != nil {
		return err
	}
	if _, ok := f.st.optionValues[id]; !ok {
		return fmt.Errorf("%w: OptionValue.delete: no option value %d", crm.ErrAPI, id)
	}
	delete(f.st.optionValues, id)
	return nil
}

// EntityRoles implements crm.API.
func (f *Fake) EntityRoles(ctx context.Context, flt crm.EntityRoleFilter) ([]crm.EntityRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("EntityRole", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.entityRoles, flt.Matches), nil
}

// CreateEntityRole implements crm.API.
func (f *Fake) CreateEntityRole(ctx context.Context, p crm.EntityRoleParams) (crm.EntityRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("EntityRole", "create", p); err != nil {
		return crm.EntityRole{}, err
	}
	r := crm.EntityRole{ID: f.id(), EntityTable: p.EntityTable, EntityID: p.EntityID, ACLRoleID: p.ACLRoleID, IsActive: p.IsActive}
	f.st.entityRoles[r.ID] = r
	return r, nil
}

// DeleteEntityRole implements crm.API.
func (f *Fake) DeleteEntityRole(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("EntityRole", "delete", nil); err != nil {
		return err
	}
	if _, ok := f.st.entityRoles[id]; !ok {
		return fmt.Errorf("%w: EntityRole.delete: no entity role %d", crm.ErrAPI, id)
	}
	delete(f.st.entityRoles, id)
	return nil
}

// ACLs implements crm.API.
func (f *Fake) ACLs(ctx context.Context, flt crm.ACLFilter) ([]crm.ACL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Acl", "get", nil); err != nil {
		return nil, err
	}
	return sorted(f.st.acls, flt.Matches), nil
}

// CreateACL implements crm.API.
func (f *Fake) CreateACL(ctx context.Context, p crm.ACLParams) (crm.ACL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Acl", "create", p); err != nil {
		return crm.ACL{}, err
	}
	a := aclFrom(p)
	a.ID = f.id()
	f.st.acls[a.ID] = a
	return a, nil
}

// UpdateACL implements crm.API.
func (f *Fake) UpdateACL(ctx context.Context, id int64, p crm.ACLParams) (crm.ACL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Acl", "create", p); err != nil {
		return crm.ACL{}, err
	}
	if _, ok := f.st.acls[id]; !ok {
		return crm.ACL{}, fmt.Errorf("%w: Acl.create: no acl %d", crm.ErrAPI, id)
	}
	a := aclFrom(p)
	a.ID = id
	f.st.acls[id] = a
	return a, nil
}

// DeleteACL implements crm.API.
func (f *Fake) DeleteACL(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Acl", "delete", nil); err != nil {
		return err
	}
	if _, ok := f.st.acls[id]; !ok {
		return fmt.Errorf("%w: Acl.delete: no acl %d", crm.ErrAPI, id)
	}
	delete(f.st.acls, id)
	return nil
}

func aclFrom(p crm.ACLParams) crm.ACL {
	return crm.ACL{
		Name:        p.Name,
		EntityTable: p.EntityTable,
		EntityID:    p.EntityID,
		Operation:   p.Operation,
		ObjectTable: p.ObjectTable,
		ObjectID:    p.ObjectID,
		IsActive:    p.IsActive,
		Deny:        p.Deny,
	}
}

// Seed helpers for tests that need CRM-side state created "by someone else".

// SeedGroup inserts a group without firing events.
func (f *Fake) SeedGroup(g crm.Group) crm.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.ID == 0 {
		g.ID = f.id()
	} else if g.ID > f.st.nextID {
		f.st.nextID = g.ID
	}
	f.st.groups[g.ID] = g
	return g
}

// SeedContact inserts a contact without firing events.
func (f *Fake) SeedContact(c crm.Contact) crm.Contact {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.id()
	} else if c.ID > f.st.nextID {
		f.st.nextID = c.ID
	}
	f.st.contacts[c.ID] = c
	return c
}

// SeedGroupContact inserts or overwrites a membership row without firing
// events.
func (f *Fake) SeedGroupContact(groupID, contactID int64, status crm.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pair{groupID, contactID}
	rid, ok := f.st.rowIndex[key]
	if !ok {
		rid = f.id()
		f.st.rowIndex[key] = rid
	}
	f.st.rows[rid] = crm.GroupContact{ID: rid, GroupID: groupID, ContactID: contactID, Status: status}
}

// SeedEntityRole inserts a role assignment without validation.
func (f *Fake) SeedEntityRole(r crm.EntityRole) crm.EntityRole {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = f.id()
	f.st.entityRoles[r.ID] = r
	return r
}

// SeedACL inserts a permission rule without validation.
func (f *Fake) SeedACL(a crm.ACL) crm.ACL {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	f.st.acls[a.ID] = a
	return a
}

// Status returns the membership status of contactID in groupID.
func (f *Fake) Status(groupID, contactID int64) (crm.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rid, ok := f.st.rowIndex[pair{groupID, contactID}]
	if !ok {
		return "", false
	}
	return f.st.rows[rid].Status, true
}
