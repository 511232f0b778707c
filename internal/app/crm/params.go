package crm

// GroupParams creates a CRM group. Member and ACL records differ only in
// their values; see MemberGroupParams and ACLGroupParams in the lifecycle
// package.
type GroupParams struct {
	Name        string `json:"name,omitempty"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source" validate:"required,max=255"`
	GroupType   string `json:"group_type" validate:"required,oneof=1 2"`
	IsActive    bool   `json:"is_active"`
	Visibility  string `json:"visibility,omitempty" validate:"omitempty,oneof=User-and-User-Admin-Only Public-Pages"`
}

// GroupUpdate changes the mutable fields of a group. Nil fields are kept.
type GroupUpdate struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	Source      *string `json:"source,omitempty" validate:"omitempty,min=1,max=255"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// GroupContactParams sets the status of contacts in a group.
type GroupContactParams struct {
	GroupID    int64   `json:"group_id" validate:"required,gt=0"`
	ContactIDs []int64 `json:"contact_id" validate:"required,min=1,dive,gt=0"`
	Status     Status  `json:"status" validate:"required,oneof=Added Pending Removed"`
}

// ContactParams creates an individual.
type ContactParams struct {
	ContactType string `json:"contact_type" validate:"required,oneof=Individual Organization Household"`
	DisplayName string `json:"display_name,omitempty" validate:"max=128"`
	FirstName   string `json:"first_name,omitempty" validate:"max=64"`
	LastName    string `json:"last_name,omitempty" validate:"max=64"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
}

// UFMatchParams links a user to a contact.
type UFMatchParams struct {
	UFID      int64  `json:"uf_id" validate:"required,gt=0"`
	UFName    string `json:"uf_name,omitempty"`
	ContactID int64  `json:"contact_id" validate:"required,gt=0"`
}

// NestingParams creates a nesting edge.
type NestingParams struct {
	ParentGroupID int64 `json:"parent_group_id" validate:"required,gt=0"`
	ChildGroupID  int64 `json:"child_group_id" validate:"required,gt=0,nefield=ParentGroupID"`
}

// OptionValueParams creates or updates an option value.
type OptionValueParams struct {
	OptionGroup string `json:"option_group_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	Label       string `json:"label" validate:"required,max=255"`
	Value       string `json:"value,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// EntityRoleParams assigns a role.
type EntityRoleParams struct {
	EntityTable string `json:"entity_table" validate:"required"`
	EntityID    int64  `json:"entity_id" validate:"required,gt=0"`
	ACLRoleID   string `json:"acl_role_id" validate:"required"`
	IsActive    bool   `json:"is_active"`
}

// ACLParams creates or updates a permission rule.
type ACLParams struct {
	Name        string `json:"name" validate:"required,max=255"`
	EntityTable string `json:"entity_table" validate:"required"`
	EntityID    string `json:"entity_id" validate:"required"`
	Operation   string `json:"operation" validate:"required,oneof=View Edit Create Delete Search All"`
	ObjectTable string `json:"object_table" validate:"required"`
	ObjectID    int64  `json:"object_id" validate:"required,gt=0"`
	IsActive    bool   `json:"is_active"`
	Deny        bool   `json:"deny"`
}
