package models

import "time"

// Staff roles. Superadmin may manage other staff accounts; all three roles
// receive inbound-reply notifications.
const (
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
	RoleStaff      = "staff"
)

// Staff is a back-office account.
type Staff struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ValidRole reports whether r is a known staff role.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleSuperadmin, RoleStaff:
		return true
	default:
		return false
	}
}
