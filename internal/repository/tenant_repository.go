package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
)

// TenantRepo persists tenants.
type TenantRepo struct{ DB *sqlx.DB }

func NewTenantRepo(db *sqlx.DB) *TenantRepo { return &TenantRepo{DB: db} }

// Create inserts t and fills in its ID and timestamps.
func (r *TenantRepo) Create(ctx context.Context, t *model.Tenant) error {
	ts := now()
	id, err := database.InsertID(ctx, r.DB,
		"INSERT INTO tenants (name, address, created_at, updated_at) VALUES (?,?,?,?)",
		t.Name, t.Address, ts, ts)
	if err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	t.ID = id
	t.CreatedAt, t.UpdatedAt = ts, ts
	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (model.Tenant, error) {
	var t model.Tenant
	err := r.DB.GetContext(ctx, &t,
		r.DB.Rebind("SELECT id, name, address, created_at, updated_at FROM tenants WHERE id=?"), id)
	return t, notFound(err)
}

func (r *TenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	tenants := []model.Tenant{}
	if err := r.DB.SelectContext(ctx, &tenants,
		"SELECT id, name, address, created_at, updated_at FROM tenants ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

// Update writes name and address.
func (r *TenantRepo) Update(ctx context.Context, t *model.Tenant) error {
	ts := now()
	res, err := r.DB.ExecContext(ctx,
		r.DB.Rebind("UPDATE tenants SET name=?, address=?, updated_at=? WHERE id=?"),
		t.Name, t.Address, ts, t.ID)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	if err := affected(res); err != nil {
		return err
	}
	t.UpdatedAt = ts
	return nil
}

// Delete removes a tenant; users that referenced it keep existing with a
// NULL tenant_id.
func (r *TenantRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind("DELETE FROM tenants WHERE id=?"), id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	if err := affected(res); err != nil {
		return err
	}
	return nil
}
