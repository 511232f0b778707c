// internal/domain/models/user.go
package models

import (
	"time"
)

// User is a social platform account.
//
// NOTE:
//   - Email may be empty for accounts created from CRM contacts whose email
//     is not known yet; it is filled in when the CRM reports one.
type User struct {
	ID           int64     `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	DisplayCI    string    `bson:"display_ci" json:"-"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	Status       string    `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}
