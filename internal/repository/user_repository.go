package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
)

const userColumns = "id, first_name, last_name, email, password_hash, role, tenant_id, created_at, updated_at"

// UserRepo persists principals in the users table.
type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u and fills in its ID and timestamps.  PasswordHash must
// already be a bcrypt hash.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	ts := now()
	id, err := database.InsertID(ctx, r.DB,
		"INSERT INTO users (first_name, last_name, email, password_hash, role, tenant_id, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)",
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, u.TenantID, ts, ts)
	if err != nil {
		switch {
		case database.IsDuplicate(err):
			return ErrEmailExists
		case database.IsForeignKey(err):
			return ErrTenantNotFound
		}
		return fmt.Errorf("creating user: %w", err)
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = ts, ts
	return nil
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u,
		r.DB.Rebind("SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1"), email)
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u,
		r.DB.Rebind("SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1"), id)
	return u, notFound(err)
}

// List returns all users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := r.DB.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Update writes the mutable columns (names, email, role, tenant) of u.
// The password hash and creation time are left untouched.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	ts := now()
	res, err := r.DB.ExecContext(ctx,
		r.DB.Rebind("UPDATE users SET first_name=?, last_name=?, email=?, role=?, tenant_id=?, updated_at=? WHERE id=?"),
		u.FirstName, u.LastName, u.Email, u.Role, u.TenantID, ts, u.ID)
	if err != nil {
		switch {
		case database.IsDuplicate(err):
			return ErrEmailExists
		case database.IsForeignKey(err):
			return ErrTenantNotFound
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if err := affected(res); err != nil {
		return err
	}
	u.UpdatedAt = ts
	return nil
}

// Delete removes a user together with every refresh token it owns.  The
// foreign key cascades as well; deleting explicitly keeps the behaviour
// identical on engines where cascades are disabled.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM refresh_tokens WHERE user_id=?"), id); err != nil {
		return fmt.Errorf("deleting user tokens: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE id=?"), id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if err := affected(res); err != nil {
		return err
	}
	return tx.Commit()
}
