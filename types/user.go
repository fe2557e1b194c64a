package types

import "time"

// User represents an account in the system.
// It contains identity, role flags, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"-" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// IsStaff marks the user as a manager who may administer
	// user accounts.
	IsStaff bool `json:"-" db:"is_staff"`

	// IsSuperuser marks the user as an administrator who bypasses
	// ownership scoping entirely. Superuser access implies staff
	// access everywhere staff is checked.
	IsSuperuser bool `json:"-" db:"is_superuser"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// UserType values accepted when creating or updating an account with an
// elevated role.
const (
	UserTypeStaff     = "is_staff"
	UserTypeSuperuser = "is_superuser"
)
