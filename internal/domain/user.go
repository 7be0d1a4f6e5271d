package domain

import "github.com/google/uuid"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile mirrors a row of the profiles table; the id is the identity
// provider's user id.
type Profile struct {
	ID               uuid.UUID `db:"id" json:"id"`
	FullName         string    `db:"full_name" json:"full_name"`
	Role             string    `db:"role" json:"role"`
	TrackerInstalled bool      `db:"tracker_installed" json:"tracker_installed"`
}

func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }
