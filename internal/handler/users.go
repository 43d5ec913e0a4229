package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

// UserAdminStore is the user persistence behind the admin endpoints.
type UserAdminStore interface {
	UserStore
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id uint64) error
}

// UserHandler serves the admin-only /users endpoints.
type UserHandler struct {
	Users  UserAdminStore
	Hasher Hasher
}

func NewUserHandler(users UserAdminStore, hasher Hasher) *UserHandler {
	return &UserHandler{Users: users, Hasher: hasher}
}

type createUserRequest struct {
	FirstName string  `json:"firstName" validate:"required" msg:"First name is required!"`
	LastName  string  `json:"lastName" validate:"required" msg:"Last name is required!"`
	Email     string  `json:"email" validate:"required,email" msg:"required:Email is required!|email:Email should be in valid format!"`
	Password  string  `json:"password" validate:"required,min=8,maxbytes=72" msg:"required:Password is required!|min:Password length should be at least 8 characters!|maxbytes:Password length should be at most 72 bytes!"`
	Role      string  `json:"role" validate:"required,role" msg:"required:Role is required!|role:Role must be one of customer, admin, manager"`
	TenantID  *uint64 `json:"tenantId" validate:"omitempty,min=1" msg:"Tenant id must be a positive number"`
}

func (r *createUserRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Password = strings.TrimSpace(r.Password)
	r.Role = strings.TrimSpace(r.Role)
}

// updateUserRequest is a partial update; absent fields keep their value.
// Passwords are not changed through this endpoint.
type updateUserRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1" msg:"First name cannot be empty"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1" msg:"Last name cannot be empty"`
	Email     *string `json:"email" validate:"omitempty,email" msg:"Email should be in valid format!"`
	Role      *string `json:"role" validate:"omitempty,role" msg:"Role must be one of customer, admin, manager"`
	TenantID  *uint64 `json:"tenantId" validate:"omitempty,min=1" msg:"Tenant id must be a positive number"`
	// ClearTenant detaches the user from its tenant.
	ClearTenant bool `json:"clearTenant"`
}

func (r *updateUserRequest) normalize() {
	for _, p := range []*string{r.FirstName, r.LastName, r.Email, r.Role} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

func idParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, ValidationError(ErrorDetail{Type: "param", Message: "Invalid url param", Path: "id", Location: "params"})
	}
	return id, nil
}

// checkTenant enforces that admins are never attached to a tenant.
func checkTenant(role string, tenantID *uint64) error {
	if role == model.RoleAdmin && tenantID != nil {
		return fieldError("tenantId", "Admins cannot belong to a tenant")
	}
	return nil
}

func userWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return DuplicateResourceError("Email already exists")
	case errors.Is(err, repository.ErrTenantNotFound):
		return fieldError("tenantId", "Tenant does not exist")
	case errors.Is(err, repository.ErrNotFound):
		return NotFoundError("User not found")
	}
	return StorageError(err)
}

func (h *UserHandler) Create(c echo.Context) error {
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := checkTenant(req.Role, req.TenantID); err != nil {
		return err
	}
	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		return hashError(err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u := model.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		TenantID:     req.TenantID,
	}
	if err := h.Users.Create(ctx, &u); err != nil {
		return userWriteError(err)
	}
	return c.JSON(http.StatusCreated, idResponse{ID: u.ID})
}

func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return StorageError(err)
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userWriteError(err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userWriteError(err)
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	switch {
	case req.ClearTenant:
		u.TenantID = nil
	case req.TenantID != nil:
		u.TenantID = req.TenantID
	}
	if err := checkTenant(u.Role, u.TenantID); err != nil {
		return err
	}

	if err := h.Users.Update(ctx, &u); err != nil {
		return userWriteError(err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Delete removes a user; its refresh records go with it.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return userWriteError(err)
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}
