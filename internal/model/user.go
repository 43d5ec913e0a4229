package model

import "time"

// Role names as stored in users.role and carried in the "role" claim of
// access tokens.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleManager  = "manager"
)

// ValidRole reports whether r is one of the roles known to the service.
func ValidRole(r string) bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// User represents a row of the `users` table.  The struct carries only db
// tags; handlers build their own response types so that PasswordHash never
// leaves the process.
//
// Fields:
//
//	ID           – primary key, assigned by the database on insert.
//	FirstName    – given name.
//	LastName     – family name.
//	Email        – unique login key, stored exactly as submitted (trimmed).
//	PasswordHash – bcrypt hash of the password.
//	Role         – one of RoleCustomer, RoleAdmin, RoleManager.
//	TenantID     – optional tenant the user belongs to (nil for admins).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `db:"id"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	TenantID     *uint64   `db:"tenant_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// RefreshToken models an entry in the `refresh_tokens` ledger.  Its ID is
// embedded as the jti claim of the signed refresh token, so a token is only
// usable while the row exists and has not expired.  The signed token itself
// is never stored.
type RefreshToken struct {
	ID        uint64    `db:"id"`
	UserID    uint64    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the record is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
