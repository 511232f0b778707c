package lifecycle

import (
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupsync/internal/app/system/validation"
	"github.com/dalemusser/groupsync/internal/domain/models"
)

// Visibility of synced records in the CRM.
const Visibility = "User-and-User-Admin-Only"

// ACLTitle is the title of a group's ACL record.
func ACLTitle(name string) string { return name + ": Administrator" }

// MemberGroupParams builds the Member record of g.
func MemberGroupParams(g models.Group) crm.GroupParams {
	return crm.GroupParams{
		Title:       g.Name,
		Description: htmlsanitize.PlainText(g.Description),
		Source:      synctag.Member(g.ID).String(),
		GroupType:   crm.GroupTypeMailingList,
		IsActive:    g.IsActive(),
		Visibility:  Visibility,
	}
}

// ACLGroupParams builds the ACL record of g.
func ACLGroupParams(g models.Group) crm.GroupParams {
	return crm.GroupParams{
		Title:       ACLTitle(g.Name),
		Description: htmlsanitize.PlainText(g.Description),
		Source:      synctag.ACL(g.ID).String(),
		GroupType:   crm.GroupTypeAccessControl,
		IsActive:    g.IsActive(),
		Visibility:  Visibility,
	}
}

// validate checks both record params before any CRM call.
func validate(params ...crm.GroupParams) error {
	for _, p := range params {
		if err := validation.Struct(p); err != nil {
			return fmt.Errorf("%w: %s: %v", crm.ErrValidation, p.Source, err)
		}
	}
	return nil
}

// changes returns the update that brings cur to want, and whether any
// field differs. Tag and type are never changed.
func changes(cur crm.Group, want crm.GroupParams) (crm.GroupUpdate, bool) {
	var u crm.GroupUpdate
	dirty := false
	if cur.Title != want.Title {
		u.Title = &want.Title
		dirty = true
	}
	if cur.Description != want.Description {
		u.Description = &want.Description
		dirty = true
	}
	if cur.IsActive != want.IsActive {
		u.IsActive = &want.IsActive
		dirty = true
	}
	return u, dirty
}
