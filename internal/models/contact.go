package models

import "time"

// Contact is a trusted person designated to receive emergency
// notifications on a user's behalf. At most one contact per user has
// IsPrimary set; the repository enforces this on the set-primary update.
type Contact struct {
	ID           string
	UserID       string
	Name         string
	Phone        string
	Email        *string
	Relationship *string
	IsPrimary    bool
	CreatedAt    time.Time
}

// Notifiable reports whether the contact has an address the email
// channel can deliver to.
func (c *Contact) Notifiable() bool {
	return c.Email != nil && *c.Email != ""
}
