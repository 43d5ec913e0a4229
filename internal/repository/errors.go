// Package repository holds the SQL data access layer.  Sentinel errors let
// handlers distinguish failure modes without inspecting driver errors:
// ErrNotFound becomes 404 (or a generic credential failure during login),
// ErrEmailExists a 400 duplicate error, and everything else a storage fault.
package repository

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when the unique index on users.email rejects
// an insert or update.
var ErrEmailExists = errors.New("email already exists")

// ErrTenantNotFound is returned when a user references a tenant id that
// does not exist.
var ErrTenantNotFound = errors.New("tenant not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// affected maps a write that touched no row to ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// now truncates to microseconds, the precision of DATETIME(6), so values
// read back compare equal to what was written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
