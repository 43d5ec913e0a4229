package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// UserStore is the user persistence the auth flows need.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Create(ctx context.Context, u *model.User) error
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// RefreshVerifier checks the signature and expiry of a refresh token.
type RefreshVerifier interface {
	ParseRefreshToken(raw string) (*utils.RefreshClaims, error)
}

// AuthHandler serves /auth: registration, login, logout, refresh and the
// caller's own profile and sessions.
type AuthHandler struct {
	Cookies  config.CookieConfig
	Users    UserStore
	Hasher   Hasher
	Tokens   *service.TokenService
	Verifier RefreshVerifier
	Events   service.Publisher
	Logger   *slog.Logger
}

// ----- DTOs -----

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required" msg:"First name is required!"`
	LastName  string `json:"lastName" validate:"required" msg:"Last name is required!"`
	Email     string `json:"email" validate:"required,email" msg:"required:Email is required!|email:Email should be in valid format!"`
	Password  string `json:"password" validate:"required,min=8,maxbytes=72" msg:"required:Password is required!|min:Password length should be at least 8 characters!|maxbytes:Password length should be at most 72 bytes!"`
}

func (r *registerRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email" msg:"required:Email is required!|email:Email should be in valid format!"`
	Password string `json:"password" validate:"required" msg:"Password is required!"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

type userResponse struct {
	ID        uint64    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TenantID  *uint64   `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		TenantID:  u.TenantID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type sessionResponse struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

// tokenError maps an issuance failure: missing keys are a configuration
// fault, anything else came from the ledger.
func tokenError(err error) *AppError {
	if errors.Is(err, utils.ErrKeyUnavailable) {
		return KeyUnavailableError(err)
	}
	return StorageError(err)
}

// hashError reports a password bcrypt refuses as a field error; validation
// normally catches it first.
func hashError(err error) error {
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return fieldError("password", "Password length should be at most 72 bytes!")
	}
	return err
}

func (h *AuthHandler) emit(typ string, u model.User) {
	service.Emit(h.Logger, h.Events, queue.NewAuthEvent(typ, u.ID, u.Email, u.Role))
}

// Register creates a customer account and starts a session for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	// friendlier error for the common case; the unique index still decides
	if _, err := h.Users.GetByEmail(ctx, req.Email); err == nil {
		return DuplicateResourceError("Email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return StorageError(err)
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		return hashError(err)
	}
	u := model.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleCustomer,
	}
	if err := h.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return DuplicateResourceError("Email already exists")
		}
		return StorageError(err)
	}
	h.Logger.Info("user registered", "user_id", u.ID)

	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return tokenError(err)
	}
	setAuthCookies(c, h.Cookies, pair)
	h.emit(queue.EventUserRegistered, u)
	return c.JSON(http.StatusCreated, toUserResponse(u))
}

// Login verifies credentials and starts a new session.  Unknown email and
// wrong password produce the same response.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return InvalidCredentialsError()
		}
		return StorageError(err)
	}
	if !h.Hasher.Verify(u.PasswordHash, req.Password) {
		return InvalidCredentialsError()
	}

	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return tokenError(err)
	}
	setAuthCookies(c, h.Cookies, pair)
	h.Logger.Info("user logged in", "user_id", u.ID)
	h.emit(queue.EventUserLoggedIn, u)
	return c.JSON(http.StatusOK, idResponse{ID: u.ID})
}

// Logout revokes the session named by the refresh cookie, if it is a valid
// one, and clears both cookies.  It succeeds for anonymous callers and
// when repeated.
func (h *AuthHandler) Logout(c echo.Context) error {
	clearAuthCookies(c, h.Cookies)

	ck, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusOK, echo.Map{})
	}
	claims, err := h.Verifier.ParseRefreshToken(ck.Value)
	if err != nil {
		h.Logger.Debug("logout with unusable refresh token", "error", err)
		return c.JSON(http.StatusOK, echo.Map{})
	}
	recordID, err := claims.RecordID()
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Tokens.Revoke(ctx, recordID); err != nil {
		return StorageError(err)
	}

	uid, _ := claims.UserID()
	h.Logger.Info("user logged out", "user_id", uid, "record_id", recordID)
	h.emit(queue.EventUserLoggedOut, model.User{ID: uid, Role: claims.Role})
	return c.JSON(http.StatusOK, echo.Map{})
}

// Refresh exchanges a valid refresh cookie for a new pair.  The presented
// record is claimed before anything is signed: it must exist, belong to the
// token's subject and be unexpired, and only one exchange of it succeeds.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || ck.Value == "" {
		return UnauthorizedError("Refresh token is missing")
	}
	claims, err := h.Verifier.ParseRefreshToken(ck.Value)
	if errors.Is(err, utils.ErrKeyUnavailable) {
		return KeyUnavailableError(err)
	}
	if err != nil {
		return UnauthorizedError("Invalid refresh token")
	}
	uid, err := claims.UserID()
	if err != nil {
		return UnauthorizedError("Invalid refresh token")
	}
	recordID, err := claims.RecordID()
	if err != nil {
		return UnauthorizedError("Invalid refresh token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return UnauthorizedError("Invalid refresh token")
		}
		return StorageError(err)
	}

	pair, err := h.Tokens.Rotate(ctx, u, recordID)
	if err != nil {
		if errors.Is(err, service.ErrRecordRevoked) {
			return UnauthorizedError("Refresh token has been revoked")
		}
		return tokenError(err)
	}
	setAuthCookies(c, h.Cookies, pair)
	h.emit(queue.EventTokenRefreshed, u)
	return c.JSON(http.StatusOK, idResponse{ID: u.ID})
}

// Self returns the authenticated user.
func (h *AuthHandler) Self(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return UnauthorizedError("Unauthorized")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return UnauthorizedError("User no longer exists")
		}
		return StorageError(err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Sessions lists the caller's active refresh records.
func (h *AuthHandler) Sessions(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return UnauthorizedError("Unauthorized")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	recs, err := h.Tokens.ListSessions(ctx, uid)
	if err != nil {
		return StorageError(err)
	}
	out := make([]sessionResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, sessionResponse{ID: r.ID, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt})
	}
	return c.JSON(http.StatusOK, out)
}

// RevokeSessions logs the caller out everywhere.
func (h *AuthHandler) RevokeSessions(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return UnauthorizedError("Unauthorized")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Tokens.RevokeAll(ctx, uid)
	if err != nil {
		return StorageError(err)
	}
	clearAuthCookies(c, h.Cookies)
	h.Logger.Info("sessions revoked", "user_id", uid, "count", n)
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}
