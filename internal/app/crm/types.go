// Package crm talks to the CRM (Subsystem B): groups, group contacts,
// contacts, nesting, the ACL primitives and identity links.
//
// Every entity is reached through the same request envelope. The API
// interface is implemented by Client (HTTP) and by crmtest.Fake (memory).
package crm

// Group types as stored in the CRM's group_type field.
const (
	GroupTypeAccessControl = "1"
	GroupTypeMailingList   = "2"
)

// Group is a CRM group. Member Records, ACL Records and the container are all
// Groups; Source carries the sync tag.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	GroupType   string `json:"group_type,omitempty"`
	IsActive    bool   `json:"is_active"`
	Visibility  string `json:"visibility,omitempty"`
}

// Status is a GroupContact status.
type Status string

const (
	StatusAdded   Status = "Added"
	StatusPending Status = "Pending"
	StatusRemoved Status = "Removed"
)

// Active reports whether the status counts as membership.
func (s Status) Active() bool {
	return s == StatusAdded || s == StatusPending
}

// GroupContact is one (group, contact) membership row. Rows are never
// deleted; removal sets StatusRemoved.
type GroupContact struct {
	ID        int64  `json:"id"`
	GroupID   int64  `json:"group_id"`
	ContactID int64  `json:"contact_id"`
	Status    Status `json:"status"`
}

// Contact is a CRM person.
type Contact struct {
	ID          int64  `json:"id"`
	ContactType string `json:"contact_type,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// UFMatch links a social user (UFID) to a CRM contact.
type UFMatch struct {
	ID        int64  `json:"id"`
	UFID      int64  `json:"uf_id"`
	UFName    string `json:"uf_name,omitempty"`
	ContactID int64  `json:"contact_id"`
}

// GroupNesting is a parent/child edge between two CRM groups.
type GroupNesting struct {
	ID            int64 `json:"id"`
	ParentGroupID int64 `json:"parent_group_id"`
	ChildGroupID  int64 `json:"child_group_id"`
}

// Option group and table names used by the ACL primitives.
const (
	OptionGroupACLRole = "acl_role"
	TableGroup         = "civicrm_group"
	TableACLRole       = "civicrm_acl_role"
	TableSavedSearch   = "civicrm_saved_search"
	OperationEdit      = "Edit"
)

// OptionValue is an entry of an option group. ACL roles are OptionValues in
// the acl_role group; Value is the role id.
type OptionValue struct {
	ID          int64  `json:"id"`
	OptionGroup string `json:"option_group_id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Value       string `json:"value"`
	IsActive    bool   `json:"is_active"`
}

// EntityRole assigns an ACL role to an entity (here: an ACL Record group).
type EntityRole struct {
	ID          int64  `json:"id"`
	EntityTable string `json:"entity_table"`
	EntityID    int64  `json:"entity_id"`
	ACLRoleID   string `json:"acl_role_id"`
	IsActive    bool   `json:"is_active"`
}

// ACL is a permission rule: holders of role EntityID may perform Operation on
// ObjectTable/ObjectID.
type ACL struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	EntityTable string `json:"entity_table"`
	EntityID    string `json:"entity_id"`
	Operation   string `json:"operation"`
	ObjectTable string `json:"object_table"`
	ObjectID    int64  `json:"object_id"`
	IsActive    bool   `json:"is_active"`
	Deny        bool   `json:"deny"`
}
