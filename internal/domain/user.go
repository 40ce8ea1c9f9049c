package domain

import "time"

// UserRole separates requesters (who file tickets) from technicians (who
// resolve them).
type UserRole string

const (
	RoleRequester  UserRole = "REQUESTER"
	RoleTechnician UserRole = "TECHNICIAN"
)

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for accounts on both sides of a ticket.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
