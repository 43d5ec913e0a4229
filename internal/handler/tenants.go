package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

// TenantStore is implemented by repository.TenantRepo.
type TenantStore interface {
	Create(ctx context.Context, t *model.Tenant) error
	GetByID(ctx context.Context, id uint64) (model.Tenant, error)
	List(ctx context.Context) ([]model.Tenant, error)
	Update(ctx context.Context, t *model.Tenant) error
	Delete(ctx context.Context, id uint64) error
}

// TenantHandler serves the admin-only /tenants endpoints.
type TenantHandler struct {
	Tenants TenantStore
}

func NewTenantHandler(tenants TenantStore) *TenantHandler {
	return &TenantHandler{Tenants: tenants}
}

type tenantRequest struct {
	Name    string `json:"name" validate:"required,max=100" msg:"required:Tenant name is required!|max:Tenant name is too long"`
	Address string `json:"address" validate:"required,max=255" msg:"required:Tenant address is required!|max:Tenant address is too long"`
}

func (r *tenantRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Address = strings.TrimSpace(r.Address)
}

type updateTenantRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100" msg:"Tenant name must be 1 to 100 characters"`
	Address *string `json:"address" validate:"omitempty,min=1,max=255" msg:"Tenant address must be 1 to 255 characters"`
}

func (r *updateTenantRequest) normalize() {
	for _, p := range []*string{r.Name, r.Address} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

type tenantResponse struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toTenantResponse(t model.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Address:   t.Address,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func tenantError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NotFoundError("Tenant not found")
	}
	return StorageError(err)
}

func (h *TenantHandler) Create(c echo.Context) error {
	var req tenantRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t := model.Tenant{Name: req.Name, Address: req.Address}
	if err := h.Tenants.Create(ctx, &t); err != nil {
		return StorageError(err)
	}
	return c.JSON(http.StatusCreated, idResponse{ID: t.ID})
}

func (h *TenantHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	tenants, err := h.Tenants.List(ctx)
	if err != nil {
		return StorageError(err)
	}
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toTenantResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TenantHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Tenants.GetByID(ctx, id)
	if err != nil {
		return tenantError(err)
	}
	return c.JSON(http.StatusOK, toTenantResponse(t))
}

func (h *TenantHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req updateTenantRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	t, err := h.Tenants.GetByID(ctx, id)
	if err != nil {
		return tenantError(err)
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Address != nil {
		t.Address = *req.Address
	}
	if err := h.Tenants.Update(ctx, &t); err != nil {
		return tenantError(err)
	}
	return c.JSON(http.StatusOK, toTenantResponse(t))
}

// Delete removes a tenant.  Its users stay, detached.
func (h *TenantHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Tenants.Delete(ctx, id); err != nil {
		return tenantError(err)
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}
