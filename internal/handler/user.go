package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/middleware"
	"github.com/davitbz/authgate/internal/model"
	"github.com/davitbz/authgate/internal/repository"
	"github.com/davitbz/authgate/internal/utils"
)

// UserHandler bundles dependencies for user account endpoints.
type UserHandler struct {
	Users      *repository.UserRepo
	Tiers      *repository.TierRepo
	BcryptCost int
}

func NewUserHandler(users *repository.UserRepo, tiers *repository.TierRepo, bcryptCost int) *UserHandler {
	return &UserHandler{Users: users, Tiers: tiers, BcryptCost: bcryptCost}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserReq struct {
	Name            *string `json:"name"`
	Username        *string `json:"username"`
	Email           *string `json:"email"`
	ProfileImageURL *string `json:"profile_image_url"`
}

type setTierReq struct {
	TierID uint64 `json:"tier_id"`
}

type userRead struct {
	ID              uint64  `json:"id"`
	Name            string  `json:"name"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	ProfileImageURL string  `json:"profile_image_url"`
	IsActive        bool    `json:"is_active"`
	TierID          *uint64 `json:"tier_id"`
}

func toUserRead(u model.User) userRead {
	return userRead{
		ID:              u.ID,
		Name:            u.Name,
		Username:        u.Username,
		Email:           u.Email,
		ProfileImageURL: u.ProfileImageURL,
		IsActive:        u.IsActive,
		TierID:          u.TierID,
	}
}

// Register creates a new account. Username and email are checked up front
// so the caller gets a precise 409 instead of a bare constraint error.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, email and password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if taken, err := h.Users.EmailExists(ctx, req.Email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	} else if taken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email is already registered"})
	}
	if taken, err := h.Users.UsernameExists(ctx, req.Username); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	} else if taken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username not available"})
	}

	hash, err := utils.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
	}
	id, err := h.Users.Create(ctx, req.Name, req.Username, req.Email, hash)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameExists) || errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusCreated, toUserRead(u))
}

// Me returns the authenticated caller's own profile.
func (h *UserHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}
	return c.JSON(http.StatusOK, toUserRead(u))
}

// List returns a page of users. Superuser only.
func (h *UserHandler) List(c echo.Context) error {
	page, perPage, offset := pageParams(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx, offset, perPage)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	total, err := h.Users.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := make([]userRead, 0, len(users))
	for _, u := range users {
		out = append(out, toUserRead(u))
	}
	return c.JSON(http.StatusOK, paginatedResponse{
		Data: out, TotalCount: total, Page: page, ItemsPerPage: perPage,
	})
}

// GetByUsername returns one user. Superuser only.
func (h *UserHandler) GetByUsername(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toUserRead(u))
}

// UpdateMe patches the caller's own profile. Unset fields keep their
// current values; uniqueness violations surface as 409.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	name, username, email, img := u.Name, u.Username, u.Email, u.ProfileImageURL
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Username != nil {
		username = strings.ToLower(strings.TrimSpace(*req.Username))
	}
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.ProfileImageURL != nil {
		img = strings.TrimSpace(*req.ProfileImageURL)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if username != u.Username {
		if taken, err := h.Users.UsernameExists(ctx, username); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		} else if taken {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username not available"})
		}
	}
	if email != u.Email {
		if taken, err := h.Users.EmailExists(ctx, email); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		} else if taken {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email is already registered"})
		}
	}

	if err := h.Users.UpdateProfile(ctx, u.ID, name, username, email, img); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) || errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user updated"})
}

// DeleteMe soft-deletes the caller's own account. Outstanding tokens stop
// resolving immediately because identity lookups filter on is_deleted.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SoftDelete(ctx, u.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}

// HardDelete removes a user row entirely. Superuser only.
func (h *UserHandler) HardDelete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Users.HardDelete(ctx, u.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted from database"})
}

// SetTier assigns a rate-limit tier to a user. Superuser only.
func (h *UserHandler) SetTier(c echo.Context) error {
	var req setTierReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Tiers.GetByID(ctx, req.TierID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	u, err := h.Users.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Users.SetTier(ctx, u.ID, req.TierID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "tier assigned"})
}
