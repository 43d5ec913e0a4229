package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "auth.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newUser(email string) *model.User {
	return &model.User{
		FirstName:    "A",
		LastName:     "B",
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuvabcdefghijklmnopqrstuvwxyzABCDE",
		Role:         model.RoleCustomer,
	}
}

func TestUserCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(testDB(t))

	u := newUser("a@b.com")
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.ID != 1 {
		t.Errorf("ID = %d, want 1", u.ID)
	}

	got, err := users.GetByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleCustomer || got.TenantID != nil {
		t.Errorf("GetByEmail() = %+v", got)
	}

	// lookups are exact; no case folding
	if _, err := users.GetByEmail(ctx, "A@B.COM"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail(upper) error = %v, want ErrNotFound", err)
	}
	if _, err := users.GetByID(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(99) error = %v, want ErrNotFound", err)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(testDB(t))

	if err := users.Create(ctx, newUser("a@b.com")); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if err := users.Create(ctx, newUser("a@b.com")); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("second Create() error = %v, want ErrEmailExists", err)
	}
	list, err := users.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(List()) = %d, want 1", len(list))
	}
}

func TestUserTenantReference(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tenants := NewUserRepo(db), NewTenantRepo(db)

	missing := uint64(42)
	u := newUser("a@b.com")
	u.TenantID = &missing
	if err := users.Create(ctx, u); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("Create() with unknown tenant error = %v, want ErrTenantNotFound", err)
	}

	tn := &model.Tenant{Name: "Acme", Address: "Main St"}
	if err := tenants.Create(ctx, tn); err != nil {
		t.Fatalf("tenant Create() error = %v", err)
	}
	u.TenantID = &tn.ID
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// deleting the tenant detaches its users
	if err := tenants.Delete(ctx, tn.ID); err != nil {
		t.Fatalf("tenant Delete() error = %v", err)
	}
	got, err := users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TenantID != nil {
		t.Errorf("TenantID = %v, want nil", *got.TenantID)
	}
}

func TestUserUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)

	a, b := newUser("a@b.com"), newUser("c@d.com")
	for _, u := range []*model.User{a, b} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	a.FirstName, a.Role = "Ann", model.RoleManager
	if err := users.Update(ctx, a); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := users.GetByID(ctx, a.ID)
	if got.FirstName != "Ann" || got.Role != model.RoleManager {
		t.Errorf("after Update got %+v", got)
	}

	b.Email = "a@b.com"
	if err := users.Update(ctx, b); !errors.Is(err, ErrEmailExists) {
		t.Errorf("Update() to taken email error = %v, want ErrEmailExists", err)
	}
	if err := users.Update(ctx, &model.User{ID: 99, Email: "x@y.z", Role: model.RoleCustomer}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(99) error = %v, want ErrNotFound", err)
	}

	if _, err := tokens.Persist(ctx, a.ID); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := users.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	left, _ := tokens.ListByUser(ctx, a.ID)
	if len(left) != 0 {
		t.Errorf("tokens left after user delete: %d", len(left))
	}
	if err := users.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestTenantCRUD(t *testing.T) {
	ctx := context.Background()
	tenants := NewTenantRepo(testDB(t))

	tn := &model.Tenant{Name: "Acme", Address: "Main St"}
	if err := tenants.Create(ctx, tn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	tn.Name = "Acme Ltd"
	if err := tenants.Update(ctx, tn); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := tenants.GetByID(ctx, tn.ID)
	if err != nil || got.Name != "Acme Ltd" {
		t.Fatalf("GetByID() = %+v, %v", got, err)
	}
	list, _ := tenants.List(ctx)
	if len(list) != 1 {
		t.Errorf("len(List()) = %d, want 1", len(list))
	}
	if err := tenants.Delete(ctx, tn.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := tenants.GetByID(ctx, tn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete error = %v", err)
	}
	if err := tenants.Update(ctx, tn); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update after delete error = %v", err)
	}
}

func TestTokenLedger(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)

	u := newUser("a@b.com")
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	before := time.Now()
	first, err := tokens.Persist(ctx, u.ID)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	second, err := tokens.Persist(ctx, u.ID)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids = %d, %d", first.ID, second.ID)
	}
	if d := first.ExpiresAt.Sub(before); d < 364*24*time.Hour || d > 366*24*time.Hour {
		t.Errorf("expiry window = %v, want ~1y", d)
	}

	got, err := tokens.GetByID(ctx, first.ID)
	if err != nil || got.UserID != u.ID || got.Expired(time.Now()) {
		t.Fatalf("GetByID() = %+v, %v", got, err)
	}

	list, err := tokens.ListByUser(ctx, u.ID)
	if err != nil || len(list) != 2 || list[0].ID != first.ID {
		t.Fatalf("ListByUser() = %+v, %v", list, err)
	}

	// revocation is idempotent
	if err := tokens.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := tokens.Delete(ctx, first.ID); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := tokens.GetByID(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete error = %v", err)
	}

	n, err := tokens.DeleteAllForUser(ctx, u.ID)
	if err != nil || n != 1 {
		t.Errorf("DeleteAllForUser() = %d, %v; want 1", n, err)
	}
}

func TestTokenPersistUnknownUser(t *testing.T) {
	tokens := NewTokenRepo(testDB(t))
	if _, err := tokens.Persist(context.Background(), 999); err == nil {
		t.Fatal("Persist() for unknown user succeeded")
	}
}

func TestTokenDeleteExpired(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)

	u := newUser("a@b.com")
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec, err := tokens.Persist(ctx, u.ID)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	n, err := tokens.DeleteExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("DeleteExpired() = %d, %v; want 0", n, err)
	}

	n, err = tokens.deleteExpiredAt(ctx, rec.ExpiresAt)
	if err != nil || n != 1 {
		t.Fatalf("deleteExpiredAt(expiry) = %d, %v; want 1", n, err)
	}
	if _, err := tokens.GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived sweep: %v", err)
	}
}

func TestTokenConsume(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)

	u := newUser("a@b.com")
	other := newUser("c@d.com")
	for _, x := range []*model.User{u, other} {
		if err := users.Create(ctx, x); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	rec, err := tokens.Persist(ctx, u.ID)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if ok, err := tokens.Consume(ctx, rec.ID, other.ID); err != nil || ok {
		t.Fatalf("Consume() by another user = %v, %v; want false", ok, err)
	}
	if ok, err := tokens.Consume(ctx, rec.ID, u.ID); err != nil || !ok {
		t.Fatalf("Consume() = %v, %v; want true", ok, err)
	}
	if ok, err := tokens.Consume(ctx, rec.ID, u.ID); err != nil || ok {
		t.Fatalf("second Consume() = %v, %v; want false", ok, err)
	}
	if _, err := tokens.GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived Consume: %v", err)
	}
}

func TestTokenConsumeSkipsExpired(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)

	u := newUser("a@b.com")
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec, err := tokens.Persist(ctx, u.ID)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, db.Rebind("UPDATE refresh_tokens SET expires_at=? WHERE id=?"),
		time.Now().UTC().Add(-time.Minute), rec.ID); err != nil {
		t.Fatalf("expire record: %v", err)
	}

	if ok, err := tokens.Consume(ctx, rec.ID, u.ID); err != nil || ok {
		t.Fatalf("Consume() of expired record = %v, %v; want false", ok, err)
	}
	if _, err := tokens.GetByID(ctx, rec.ID); err != nil {
		t.Errorf("expired record should stay for the sweeper: %v", err)
	}
}
