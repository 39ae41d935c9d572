package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/middleware"
	"github.com/davitbz/authgate/internal/model"
	"github.com/davitbz/authgate/internal/repository"
)

// RateLimitHandler bundles dependencies for the tier policy endpoints. All
// routes are superuser only.
type RateLimitHandler struct {
	Tiers    *repository.TierRepo
	Policies *repository.RateLimitRepo
}

func NewRateLimitHandler(tiers *repository.TierRepo, policies *repository.RateLimitRepo) *RateLimitHandler {
	return &RateLimitHandler{Tiers: tiers, Policies: policies}
}

type rateLimitReq struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Limit  int    `json:"limit"`
	Period int    `json:"period"`
}

type rateLimitRead struct {
	ID     uint64 `json:"id"`
	TierID uint64 `json:"tier_id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Limit  int    `json:"limit"`
	Period int    `json:"period"`
}

func toRateLimitRead(rl model.RateLimit) rateLimitRead {
	return rateLimitRead{
		ID: rl.ID, TierID: rl.TierID, Name: rl.Name,
		Path: rl.Path, Limit: rl.Limit, Period: rl.Period,
	}
}

// tierFromParam resolves the :tier_name route parameter, writing the
// error response itself when the tier is missing.
func (h *RateLimitHandler) tierFromParam(ctx context.Context, c echo.Context) (model.Tier, bool, error) {
	t, err := h.Tiers.GetByName(ctx, c.Param("tier_name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Tier{}, false, c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return model.Tier{}, false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return t, true, nil
}

// List returns a page of a tier's policies.
func (h *RateLimitHandler) List(c echo.Context) error {
	page, perPage, offset := pageParams(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tier, ok, err := h.tierFromParam(ctx, c)
	if !ok {
		return err
	}

	policies, err := h.Policies.ListByTier(ctx, tier.ID, offset, perPage)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	total, err := h.Policies.CountByTier(ctx, tier.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := make([]rateLimitRead, 0, len(policies))
	for _, rl := range policies {
		out = append(out, toRateLimitRead(rl))
	}
	return c.JSON(http.StatusOK, paginatedResponse{
		Data: out, TotalCount: total, Page: page, ItemsPerPage: perPage,
	})
}

// Get returns one policy scoped to a tier.
func (h *RateLimitHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid policy id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tier, ok, herr := h.tierFromParam(ctx, c)
	if !ok {
		return herr
	}

	rl, err := h.Policies.GetByID(ctx, tier.ID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rate limit policy not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toRateLimitRead(rl))
}

// Create adds a policy for a tier. The path is normalized the same way the
// limiter normalizes request routes so lookups always match.
func (h *RateLimitHandler) Create(c echo.Context) error {
	var req rateLimitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Path = middleware.NormalizePath(req.Path)
	if req.Name == "" || req.Path == "" || req.Limit < 1 || req.Period < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, path, limit and period required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tier, ok, herr := h.tierFromParam(ctx, c)
	if !ok {
		return herr
	}

	id, err := h.Policies.Create(ctx, tier.ID, req.Name, req.Path, req.Limit, req.Period)
	if err != nil {
		if errors.Is(err, repository.ErrRateLimitExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "rate limit policy already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create policy failed"})
	}
	rl, err := h.Policies.GetByID(ctx, tier.ID, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load policy failed"})
	}
	return c.JSON(http.StatusCreated, toRateLimitRead(rl))
}

// Update rewrites a policy.
func (h *RateLimitHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid policy id"})
	}
	var req rateLimitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Path = middleware.NormalizePath(req.Path)
	if req.Name == "" || req.Path == "" || req.Limit < 1 || req.Period < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, path, limit and period required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tier, ok, herr := h.tierFromParam(ctx, c)
	if !ok {
		return herr
	}

	if err := h.Policies.Update(ctx, tier.ID, id, req.Name, req.Path, req.Limit, req.Period); err != nil {
		if errors.Is(err, repository.ErrRateLimitExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "rate limit policy already exists"})
		}
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rate limit policy not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update policy failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "rate limit policy updated"})
}

// Delete removes a policy.
func (h *RateLimitHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid policy id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tier, ok, herr := h.tierFromParam(ctx, c)
	if !ok {
		return herr
	}

	if err := h.Policies.Delete(ctx, tier.ID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rate limit policy not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete policy failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "rate limit policy deleted"})
}
