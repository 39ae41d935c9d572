package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/auth"
	"github.com/davitbz/authgate/internal/middleware"
	"github.com/davitbz/authgate/internal/model"
	"github.com/davitbz/authgate/internal/queue"
	"github.com/davitbz/authgate/internal/repository"
	queue_publisher "github.com/davitbz/authgate/internal/service"
	"github.com/davitbz/authgate/internal/utils"
)

const refreshCookieName = "refresh_token"

// loginStore is the slice of the user repository the auth endpoints need.
type loginStore interface {
	GetByLogin(ctx context.Context, usernameOrEmail string) (model.User, error)
}

// blacklistWriter records revoked token ids.
type blacklistWriter interface {
	Add(ctx context.Context, jti, username string, expiresAt time.Time) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Gate         *auth.Gate
	Users        loginStore
	Blacklist    blacklistWriter
	CookieSecure bool
	PublishEvent func(ctx context.Context, ev queue.AuthEvent) error
}

// NewAuthHandler wires the handler. PublishEvent defaults to the RabbitMQ
// publisher; tests may swap it out.
func NewAuthHandler(gate *auth.Gate, users loginStore, blacklist blacklistWriter, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		Gate:         gate,
		Users:        users,
		Blacklist:    blacklist,
		CookieSecure: cookieSecure,
		PublishEvent: queue_publisher.PublishAuthEvent,
	}
}

type tokenInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// audit publishes an auth event without blocking the request; losing an
// audit line must never fail a login.
func (h *AuthHandler) audit(action string, u model.User, jti, ip string) {
	if h.PublishEvent == nil {
		return
	}
	ev := queue.AuthEvent{
		Action:     action,
		UserID:     u.ID,
		Username:   u.Username,
		JTI:        jti,
		ClientIP:   ip,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.PublishEvent(ctx, ev)
	}()
}

// Login exchanges form credentials for a token pair. The identifier field
// accepts either the username or the email; a single generic 401 message
// covers every failure so callers cannot probe which part was wrong.
func (h *AuthHandler) Login(c echo.Context) error {
	identifier := strings.TrimSpace(c.FormValue("username_or_email"))
	password := c.FormValue("password")
	if identifier == "" || password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username_or_email and password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "wrong username, email or password"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "wrong username, email or password"})
	}

	access, err := h.Gate.Codec.IssueAccess(u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := h.Gate.Codec.IssueRefresh(u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}

	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh,
		Path:     "/",
		MaxAge:   int(h.Gate.Codec.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.audit("login", u, "", c.RealIP())

	return c.JSON(http.StatusOK, tokenInfo{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

// Refresh exchanges a refresh token (query parameter or cookie) for a new
// access token. The refresh token is not rotated: the same one stays usable
// until its natural expiry unless its jti is explicitly revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := c.QueryParam(refreshCookieName)
	if raw == "" {
		if ck, err := c.Cookie(refreshCookieName); err == nil {
			raw = ck.Value
		}
	}
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token missing"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Gate.AuthenticateRefresh(ctx, raw)
	if err != nil {
		if auth.IsAuthFailure(err) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "auth lookup failed"})
	}

	access, err := h.Gate.Codec.IssueAccess(u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}

	h.audit("refresh", u, "", c.RealIP())

	return c.JSON(http.StatusOK, tokenInfo{
		AccessToken: access,
		TokenType:   "Bearer",
	})
}

// Logout revokes the presented access token by recording its jti in the
// blacklist and clears the refresh cookie. Runs behind RequireAuth, so the
// token is known valid; it is decoded again here because the guard does not
// expose raw claims. A duplicate blacklist row means the token is already
// dead, which is success from the caller's point of view.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	claims, err := h.Gate.Codec.Decode(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	expiresAt := time.Now().UTC()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := h.Blacklist.Add(ctx, claims.ID, claims.Username, expiresAt); err != nil &&
		!errors.Is(err, repository.ErrTokenAlreadyRevoked) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	// Expire the refresh cookie on the client.
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if u, ok := middleware.CurrentUser(c); ok {
		h.audit("logout", u, claims.ID, c.RealIP())
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}
