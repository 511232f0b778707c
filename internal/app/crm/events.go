package crm

import "github.com/dalemusser/groupsync/internal/app/system/events"

// Topics published on the CRM bus.
const (
	TopicGroupContact events.Topic = "crm/group_contact"
	TopicGroup        events.Topic = "crm/group"
	TopicEmail        events.Topic = "crm/email"
)

// Op is the data-layer operation that fired an event.
type Op string

const (
	OpCreate Op = "create"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// GroupContactEvent fires after contacts are added to, re-added to (edit) or
// removed from a group.
type GroupContactEvent struct {
	Op         Op      `json:"op"`
	GroupID    int64   `json:"group_id"`
	ContactIDs []int64 `json:"contact_ids"`
}

func (GroupContactEvent) Topic() events.Topic { return TopicGroupContact }

// GroupEvent fires after a group is created, edited or deleted.
type GroupEvent struct {
	Op    Op    `json:"op"`
	Group Group `json:"group"`
}

func (GroupEvent) Topic() events.Topic { return TopicGroup }

// EmailEvent fires after a contact's primary email is written.
type EmailEvent struct {
	ContactID int64  `json:"contact_id"`
	Email     string `json:"email"`
}

func (EmailEvent) Topic() events.Topic { return TopicEmail }
