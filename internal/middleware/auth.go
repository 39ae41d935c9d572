package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/auth"
	"github.com/davitbz/authgate/internal/model"
)

// userContextKey is where guards store the resolved user for handlers.
const userContextKey = "current_user"

// CurrentUser returns the user a guard stored in the context, if any.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userContextKey).(model.User)
	return u, ok
}

// bearerToken pulls the raw token out of the Authorization header. The
// second return is false when no bearer token was presented.
func bearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}

// RequireAuth validates the bearer access token through the gate (signature,
// expiry, kind, blacklist, identity lookup) and stores the resolved user in
// the context. Any negative-authentication outcome yields 401; store
// failures yield 500. If an earlier OptionalAuth already resolved a user,
// the token is not verified a second time.
func RequireAuth(gate *auth.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentUser(c); ok {
				return next(c)
			}
			raw, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			u, err := gate.Authenticate(c.Request().Context(), raw)
			if err != nil {
				if auth.IsAuthFailure(err) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "auth lookup failed"})
			}
			c.Set(userContextKey, u)
			return next(c)
		}
	}
}

// RequireActiveUser enforces is_active on the user resolved by RequireAuth.
// Chain it after RequireAuth; a missing user means the chain is miswired and
// is treated as unauthorized.
func RequireActiveUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			if !u.IsActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "inactive user"})
			}
			return next(c)
		}
	}
}

// RequireSuperuser enforces is_superuser on the user resolved by
// RequireAuth. Chain it after RequireAuth.
func RequireSuperuser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			if !u.IsSuperuser {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "superuser required"})
			}
			return next(c)
		}
	}
}

// OptionalAuth resolves a user when a valid access token is present and
// proceeds anonymously otherwise. Only the enumerated negative-auth
// outcomes (invalid, expired, wrong kind, revoked, unknown) collapse to
// anonymous; infrastructure failures still abort the request so a store
// outage cannot silently downgrade everyone to the anonymous rate bucket.
func OptionalAuth(gate *auth.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return next(c)
			}
			u, err := gate.Authenticate(c.Request().Context(), raw)
			if err != nil {
				if auth.IsAuthFailure(err) {
					return next(c)
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "auth lookup failed"})
			}
			c.Set(userContextKey, u)
			return next(c)
		}
	}
}
