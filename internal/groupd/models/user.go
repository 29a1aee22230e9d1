package models

import "time"

// UserStatus is the admission state of a registered identity.
// Transitions only ever go pending -> approved.
type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusApproved UserStatus = "approved"
)

// User is one row of the identity store: a username bound to an
// ASCII-armored PGP public key and its admission status.
type User struct {
	Username   string
	PublicKey  string
	Status     UserStatus
	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// Approved reports whether the user passed admin admission.
func (u *User) Approved() bool {
	return u.Status == StatusApproved
}
