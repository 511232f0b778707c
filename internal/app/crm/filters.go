package crm

import (
	"slices"
	"strings"
)

// Page bounds a get call. Limit 0 means no limit. Results are ordered by id.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) options() map[string]any {
	return map[string]any{
		"limit":  p.Limit,
		"offset": p.Offset,
		"sort":   "id ASC",
	}
}

// Apply slices an id-ordered result by the page bounds.
func Apply[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return nil
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

func in[T any](vals []T) map[string]any {
	return map[string]any{"IN": vals}
}

// GroupFilter selects groups. Zero fields do not filter.
type GroupFilter struct {
	IDs          []int64
	Source       string
	SourcePrefix string
	Title        string
	Page
}

func (f GroupFilter) params() map[string]any {
	p := map[string]any{"options": f.options()}
	if len(f.IDs) > 0 {
		p["id"] = in(f.IDs)
	}
	switch {
	case f.Source != "":
		p["source"] = f.Source
	case f.SourcePrefix != "":
		p["source"] = map[string]any{"LIKE": f.SourcePrefix + "%"}
	}
	if f.Title != "" {
		p["title"] = f.Title
	}
	return p
}

// Matches reports whether g passes the filter (paging aside).
func (f GroupFilter) Matches(g Group) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, g.ID) {
		return false
	}
	if f.Source != "" && g.Source != f.Source {
		return false
	}
	if f.SourcePrefix != "" && !strings.HasPrefix(g.Source, f.SourcePrefix) {
		return false
	}
	if f.Title != "" && g.Title != f.Title {
		return false
	}
	return true
}

// GroupContactFilter selects membership rows.
type GroupContactFilter struct {
	GroupIDs   []int64
	ContactIDs []int64
	Statuses   []Status
	Page
}

func (f GroupContactFilter) params() map[string]any {
	p := map[string]any{"options": f.options()}
	if len(f.GroupIDs) > 0 {
		p["group_id"] = in(f.GroupIDs)
	}
	if len(f.ContactIDs) > 0 {
		p["contact_id"] = in(f.ContactIDs)
	}
	if len(f.Statuses) > 0 {
		p["status"] = in(f.Statuses)
	}
	return p
}

// Matches reports whether gc passes the filter.
func (f GroupContactFilter) Matches(gc GroupContact) bool {
	if len(f.GroupIDs) > 0 && !slices.Contains(f.GroupIDs, gc.GroupID) {
		return false
	}
	if len(f.ContactIDs) > 0 && !slices.Contains(f.ContactIDs, gc.ContactID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, gc.Status) {
		return false
	}
	return true
}

// ContactFilter selects contacts.
type ContactFilter struct {
	IDs   []int64
	Email string
}

func (f ContactFilter) params() map[string]any {
	p := map[string]any{"options": Page{}.options()}
	if len(f.IDs) > 0 {
		p["id"] = in(f.IDs)
	}
	if f.Email != "" {
		p["email"] = f.Email
	}
	return p
}

// Matches reports whether c passes the filter.
func (f ContactFilter) Matches(c Contact) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, c.ID) {
		return false
	}
	if f.Email != "" && !strings.EqualFold(c.Email, f.Email) {
		return false
	}
	return true
}

// UFMatchFilter selects identity links.
type UFMatchFilter struct {
	UFID      int64
	ContactID int64
}

func (f UFMatchFilter) params() map[string]any {
	p := map[string]any{}
	if f.UFID != 0 {
		p["uf_id"] = f.UFID
	}
	if f.ContactID != 0 {
		p["contact_id"] = f.ContactID
	}
	return p
}

// Matches reports whether m passes the filter.
func (f UFMatchFilter) Matches(m UFMatch) bool {
	return (f.UFID == 0 || m.UFID == f.UFID) && (f.ContactID == 0 || m.ContactID == f.ContactID)
}

// NestingFilter selects nesting edges.
type NestingFilter struct {
	ParentGroupID int64
	ChildGroupID  int64
}

func (f NestingFilter) params() map[string]any {
	p := map[string]any{"options": Page{}.options()}
	if f.ParentGroupID != 0 {
		p["parent_group_id"] = f.ParentGroupID
	}
	if f.ChildGroupID != 0 {
		p["child_group_id"] = f.ChildGroupID
	}
	return p
}

// Matches reports whether n passes the filter.
func (f NestingFilter) Matches(n GroupNesting) bool {
	return (f.ParentGroupID == 0 || n.ParentGroupID == f.ParentGroupID) &&
		(f.ChildGroupID == 0 || n.ChildGroupID == f.ChildGroupID)
}

// OptionValueFilter selects option values.
type OptionValueFilter struct {
	OptionGroup string
	Name        string
	Value       string
}

func (f OptionValueFilter) params() map[string]any {
	p := map[string]any{"options": Page{}.options()}
	if f.OptionGroup != "" {
		p["option_group_id"] = f.OptionGroup
	}
	if f.Name != "" {
		p["name"] = f.Name
	}
	if f.Value != "" {
		p["value"] = f.Value
	}
	return p
}

// Matches reports whether v passes the filter.
func (f OptionValueFilter) Matches(v OptionValue) bool {
	return (f.OptionGroup == "" || v.OptionGroup == f.OptionGroup) &&
		(f.Name == "" || v.Name == f.Name) &&
		(f.Value == "" || v.Value == f.Value)
}

// EntityRoleFilter selects role assignments.
type EntityRoleFilter struct {
	EntityTable string
	EntityID    int64
}

func (f EntityRoleFilter) params() map[string]any {
	p := map[string]any{"options": Page{}.options()}
	if f.EntityTable != "" {
		p["entity_table"] = f.EntityTable
	}
	if f.EntityID != 0 {
		p["entity_id"] = f.EntityID
	}
	return p
}

// Matches reports whether r passes the filter.
func (f EntityRoleFilter) Matches(r EntityRole) bool {
	return (f.EntityTable == "" || r.EntityTable == f.EntityTable) &&
		(f.EntityID == 0 || r.EntityID == f.EntityID)
}

// ACLFilter selects permission rules.
type ACLFilter struct {
	EntityTable string
	EntityID    string
	ObjectTable string
	ObjectID    int64
}

func (f ACLFilter) params() map[string]any {
	p := map[string]any{"options": Page{}.options()}
	if f.EntityTable != "" {
		p["entity_table"] = f.EntityTable
	}
	if f.EntityID != "" {
		p["entity_id"] = f.EntityID
	}
	if f.ObjectTable != "" {
		p["object_table"] = f.ObjectTable
	}
	if f.ObjectID != 0 {
		p["object_id"] = f.ObjectID
	}
	return p
}

// Matches reports whether a passes the filter.
func (f ACLFilter) Matches(a ACL) bool {
	return (f.EntityTable == "" || a.EntityTable == f.EntityTable) &&
		(f.EntityID == "" || a.EntityID == f.EntityID) &&
		(f.ObjectTable == "" || a.ObjectTable == f.ObjectTable) &&
		(f.ObjectID == 0 || a.ObjectID == f.ObjectID)
}
