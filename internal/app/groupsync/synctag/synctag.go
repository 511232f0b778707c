// Package synctag builds and parses the sync tags stored in a CRM group's
// source field. A tag ties a CRM group to the Logical Group it mirrors.
//
//	BP Sync Group :42:       member record of group 42
//	BP Sync Group ACL :42:   ACL record of group 42
//	BP Sync Group Parent     container group
//	OG Sync Group :42:       legacy member record (import source)
//	OG Sync Group ACL :42:   legacy ACL record
package synctag

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Namespaces used in tags.
const (
	Namespace       = "BP Sync Group"
	LegacyNamespace = "OG Sync Group"
	ContainerTag    = Namespace + " Parent"
)

// Kind classifies a tag.
type Kind int

const (
	KindUnknown Kind = iota
	KindMember
	KindACL
	KindContainer
	KindLegacyMember
	KindLegacyACL
)

func (k Kind) String() string {
	switch k {
	case KindMember:
		return "member"
	case KindACL:
		return "acl"
	case KindContainer:
		return "container"
	case KindLegacyMember:
		return "legacy-member"
	case KindLegacyACL:
		return "legacy-acl"
	default:
		return "unknown"
	}
}

// ErrNotSyncTag is returned by Parse for sources that are not sync tags.
var ErrNotSyncTag = errors.New("not a sync tag")

// Tag is a parsed sync tag.
type Tag struct {
	Kind    Kind
	GroupID int64
}

// For returns the tag for a group record of the given kind.
func For(kind Kind, groupID int64) Tag {
	return Tag{Kind: kind, GroupID: groupID}
}

// Member returns the member record tag for groupID.
func Member(groupID int64) Tag { return Tag{Kind: KindMember, GroupID: groupID} }

// ACL returns the ACL record tag for groupID.
func ACL(groupID int64) Tag { return Tag{Kind: KindACL, GroupID: groupID} }

// Container returns the container group tag.
func Container() Tag { return Tag{Kind: KindContainer} }

// String renders the tag as stored in the CRM.
func (t Tag) String() string {
	switch t.Kind {
	case KindMember:
		return fmt.Sprintf("%s :%d:", Namespace, t.GroupID)
	case KindACL:
		return fmt.Sprintf("%s ACL :%d:", Namespace, t.GroupID)
	case KindContainer:
		return ContainerTag
	case KindLegacyMember:
		return fmt.Sprintf("%s :%d:", LegacyNamespace, t.GroupID)
	case KindLegacyACL:
		return fmt.Sprintf("%s ACL :%d:", LegacyNamespace, t.GroupID)
	default:
		return ""
	}
}

// Managed reports whether the tag marks a record owned by this service
// (member or ACL record).
func (t Tag) Managed() bool {
	return t.Kind == KindMember || t.Kind == KindACL
}

// Legacy reports whether the tag comes from the legacy import source.
func (t Tag) Legacy() bool {
	return t.Kind == KindLegacyMember || t.Kind == KindLegacyACL
}

// IsACL reports whether the tag marks an ACL record (current or legacy).
func (t Tag) IsACL() bool {
	return t.Kind == KindACL || t.Kind == KindLegacyACL
}

// Sibling returns the tag of the paired record: member <-> ACL.
func (t Tag) Sibling() Tag {
	switch t.Kind {
	case KindMember:
		return Tag{Kind: KindACL, GroupID: t.GroupID}
	case KindACL:
		return Tag{Kind: KindMember, GroupID: t.GroupID}
	case KindLegacyMember:
		return Tag{Kind: KindLegacyACL, GroupID: t.GroupID}
	case KindLegacyACL:
		return Tag{Kind: KindLegacyMember, GroupID: t.GroupID}
	default:
		return t
	}
}

// Current converts a legacy tag into the equivalent current-namespace tag
// for the given Logical Group.
func (t Tag) Current(groupID int64) Tag {
	if t.IsACL() {
		return ACL(groupID)
	}
	return Member(groupID)
}

// Prefix returns the leading part shared by all tags of kind, suitable for
// prefix queries against the CRM.
func Prefix(kind Kind) string {
	switch kind {
	case KindMember:
		return Namespace + " :"
	case KindACL:
		return Namespace + " ACL :"
	case KindLegacyMember:
		return LegacyNamespace + " :"
	case KindLegacyACL:
		return LegacyNamespace + " ACL :"
	case KindContainer:
		return ContainerTag
	default:
		return ""
	}
}

var tagRE = regexp.MustCompile(`^(BP|OG) Sync Group( ACL)? :([0-9]+):$`)

// Parse classifies a CRM group source string.
func Parse(source string) (Tag, error) {
	if source == ContainerTag {
		return Container(), nil
	}
	m := tagRE.FindStringSubmatch(source)
	if m == nil {
		return Tag{}, ErrNotSyncTag
	}
	id, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || id <= 0 {
		return Tag{}, ErrNotSyncTag
	}
	acl := m[2] != ""
	switch {
	case m[1] == "BP" && acl:
		return ACL(id), nil
	case m[1] == "BP":
		return Member(id), nil
	case acl:
		return Tag{Kind: KindLegacyACL, GroupID: id}, nil
	default:
		return Tag{Kind: KindLegacyMember, GroupID: id}, nil
	}
}
