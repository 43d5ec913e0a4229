package model

import "time"

// Tenant is a row of the `tenants` table.  Non-admin users may reference a
// tenant through users.tenant_id.
type Tenant struct {
	ID        uint64    `db:"id"`
	Name      string    `db:"name"`
	Address   string    `db:"address"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
