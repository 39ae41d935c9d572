package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/model"
	"github.com/davitbz/authgate/internal/repository"
)

// TierHandler bundles dependencies for tier management endpoints.
type TierHandler struct {
	Tiers *repository.TierRepo
}

func NewTierHandler(tiers *repository.TierRepo) *TierHandler {
	return &TierHandler{Tiers: tiers}
}

type tierReq struct {
	Name string `json:"name"`
}

type tierRead struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func toTierRead(t model.Tier) tierRead { return tierRead{ID: t.ID, Name: t.Name} }

// List returns a page of tiers. Tier names are public metadata; the route
// sits behind the response cache.
func (h *TierHandler) List(c echo.Context) error {
	page, perPage, offset := pageParams(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tiers, err := h.Tiers.List(ctx, offset, perPage)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	total, err := h.Tiers.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := make([]tierRead, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, toTierRead(t))
	}
	return c.JSON(http.StatusOK, paginatedResponse{
		Data: out, TotalCount: total, Page: page, ItemsPerPage: perPage,
	})
}

// GetByName returns one tier.
func (h *TierHandler) GetByName(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tiers.GetByName(ctx, c.Param("name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toTierRead(t))
}

// Create adds a tier. Superuser only.
func (h *TierHandler) Create(c echo.Context) error {
	var req tierReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Tiers.Create(ctx, req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrTierNameExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "tier name not available"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create tier failed"})
	}
	t, err := h.Tiers.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load tier failed"})
	}
	return c.JSON(http.StatusCreated, toTierRead(t))
}

// Rename changes a tier's name. Superuser only.
func (h *TierHandler) Rename(c echo.Context) error {
	var req tierReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tiers.GetByName(ctx, c.Param("name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Tiers.Rename(ctx, t.ID, req.Name); err != nil {
		if errors.Is(err, repository.ErrTierNameExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "tier name not available"})
		}
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update tier failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "tier updated"})
}

// Delete soft-deletes a tier. Superuser only. Users keep their tier_id; the
// limiter falls back to the default policy once the tier stops resolving.
func (h *TierHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tiers.GetByName(ctx, c.Param("name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Tiers.SoftDelete(ctx, t.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete tier failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "tier deleted"})
}
