package database

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// IsDuplicate reports whether err is a unique-constraint violation from any
// of the supported drivers (MySQL 1062, postgres 23505, SQLite UNIQUE).
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// IsForeignKey reports whether err is a foreign-key violation (e.g. a user
// referencing a tenant that does not exist).
func IsForeignKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1452
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23503"
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// InsertID runs an INSERT written with "?" placeholders and returns the new
// row id.  Postgres has no LastInsertId, so the statement is extended with
// RETURNING id there.
func InsertID(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (uint64, error) {
	if db.DriverName() == "postgres" {
		var id uint64
		err := db.QueryRowxContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
