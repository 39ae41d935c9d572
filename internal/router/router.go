// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/auth"
	"github.com/davitbz/authgate/internal/handler"
	"github.com/davitbz/authgate/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication or rate
// limiting. Currently only the health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints under /api/auth. The whole
// group runs behind OptionalAuth + the rate limiter so login attempts are
// bucketed per client IP; logout additionally requires a valid access
// token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate *auth.Gate, limit echo.MiddlewareFunc) {
	g := e.Group("/api/auth", middleware.OptionalAuth(gate), limit)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.RequireAuth(gate))
}

// RegisterAPI registers the v1 resource endpoints. OptionalAuth runs first
// so the limiter can bucket authenticated callers by user id; individual
// routes then layer the stricter guards they need.
func RegisterAPI(e *echo.Echo, gate *auth.Gate, limit, cache echo.MiddlewareFunc,
	u *handler.UserHandler, t *handler.TierHandler, rl *handler.RateLimitHandler) {

	api := e.Group("/api/v1", middleware.OptionalAuth(gate), limit)

	requireAuth := middleware.RequireAuth(gate)
	requireActive := middleware.RequireActiveUser()
	requireSuper := middleware.RequireSuperuser()

	// User accounts. Registration is open; profile routes need an active
	// session; the remaining routes are admin surface.
	api.POST("/user", u.Register)
	api.GET("/user/me", u.Me, requireAuth, requireActive)
	api.PATCH("/user", u.UpdateMe, requireAuth, requireActive)
	api.DELETE("/user/me", u.DeleteMe, requireAuth, requireActive)
	api.GET("/user", u.List, requireAuth, requireSuper)
	api.GET("/user/:username", u.GetByUsername, requireAuth, requireSuper)
	api.DELETE("/user/:username", u.HardDelete, requireAuth, requireSuper)
	api.PATCH("/user/:username/tier", u.SetTier, requireAuth, requireSuper)

	// Tiers. Reads are public metadata and cacheable; writes are admin.
	api.GET("/tier", t.List, cache)
	api.GET("/tier/:name", t.GetByName, cache)
	api.POST("/tier", t.Create, requireAuth, requireSuper)
	api.PATCH("/tier/:name", t.Rename, requireAuth, requireSuper)
	api.DELETE("/tier/:name", t.Delete, requireAuth, requireSuper)

	// Rate limit policies, scoped per tier. Admin only.
	api.GET("/rate_limit/:tier_name/list", rl.List, requireAuth, requireSuper)
	api.GET("/rate_limit/:tier_name/:id", rl.Get, requireAuth, requireSuper)
	api.POST("/rate_limit/:tier_name", rl.Create, requireAuth, requireSuper)
	api.PATCH("/rate_limit/:tier_name/:id", rl.Update, requireAuth, requireSuper)
	api.DELETE("/rate_limit/:tier_name/:id", rl.Delete, requireAuth, requireSuper)
}
