package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davitbz/authgate/internal/auth"
	"github.com/davitbz/authgate/internal/model"
)

type fakeUsers struct {
	users map[uint64]model.User
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

type fakeBlacklist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

type gateFixture struct {
	gate      *auth.Gate
	codec     *auth.Codec
	users     *fakeUsers
	blacklist *fakeBlacklist
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	codec := auth.NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)
	users := &fakeUsers{users: map[uint64]model.User{}}
	blacklist := &fakeBlacklist{revoked: map[string]bool{}}
	return &gateFixture{
		gate:      auth.NewGate(codec, auth.NewResolver(users, blacklist)),
		codec:     codec,
		users:     users,
		blacklist: blacklist,
	}
}

func (g *gateFixture) addUser(t *testing.T, u model.User) string {
	t.Helper()
	g.users.users[u.ID] = u
	tok, err := g.codec.IssueAccess(u)
	require.NoError(t, err)
	return tok
}

// newContext builds an echo context with an optional bearer token and a
// recorder to inspect the response.
func newContext(token string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequireAuthMissingToken(t *testing.T) {
	f := newGateFixture(t)
	c, rec := newContext("")

	require.NoError(t, RequireAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")
}

func TestRequireAuthInvalidToken(t *testing.T) {
	f := newGateFixture(t)
	c, rec := newContext("garbage")

	require.NoError(t, RequireAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestRequireAuthStoresUser(t *testing.T) {
	f := newGateFixture(t)
	tok := f.addUser(t, model.User{ID: 7, Username: "alice", IsActive: true})

	c, rec := newContext(tok)
	var seen model.User
	handler := func(c echo.Context) error {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		seen = u
		return c.String(http.StatusOK, "ok")
	}

	require.NoError(t, RequireAuth(f.gate)(handler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), seen.ID)
}

func TestRequireAuthRevokedToken(t *testing.T) {
	f := newGateFixture(t)
	tok := f.addUser(t, model.User{ID: 7, Username: "alice", IsActive: true})

	claims, err := f.codec.Decode(tok)
	require.NoError(t, err)
	f.blacklist.revoked[claims.ID] = true

	c, rec := newContext(tok)
	require.NoError(t, RequireAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthStoreOutageIs500(t *testing.T) {
	f := newGateFixture(t)
	tok := f.addUser(t, model.User{ID: 7, IsActive: true})
	f.users.err = errors.New("connection refused")

	c, rec := newContext(tok)
	require.NoError(t, RequireAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAuthSkipsReverification(t *testing.T) {
	f := newGateFixture(t)
	c, rec := newContext("")
	c.Set(userContextKey, model.User{ID: 9, IsActive: true})

	require.NoError(t, RequireAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireActiveUser(t *testing.T) {
	c, rec := newContext("")
	c.Set(userContextKey, model.User{ID: 7, IsActive: false})
	require.NoError(t, RequireActiveUser()(okHandler)(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "inactive user")

	c, rec = newContext("")
	c.Set(userContextKey, model.User{ID: 7, IsActive: true})
	require.NoError(t, RequireActiveUser()(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireSuperuser(t *testing.T) {
	c, rec := newContext("")
	c.Set(userContextKey, model.User{ID: 7, IsActive: true})
	require.NoError(t, RequireSuperuser()(okHandler)(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "superuser required")

	c, rec = newContext("")
	c.Set(userContextKey, model.User{ID: 7, IsActive: true, IsSuperuser: true})
	require.NoError(t, RequireSuperuser()(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuthAnonymous(t *testing.T) {
	f := newGateFixture(t)

	// No token: anonymous passthrough.
	c, rec := newContext("")
	require.NoError(t, OptionalAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := CurrentUser(c)
	assert.False(t, ok)

	// Invalid token: still anonymous, not 401.
	c, rec = newContext("garbage")
	require.NoError(t, OptionalAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok = CurrentUser(c)
	assert.False(t, ok)
}

func TestOptionalAuthResolvesUser(t *testing.T) {
	f := newGateFixture(t)
	tok := f.addUser(t, model.User{ID: 7, Username: "alice", IsActive: true})

	c, rec := newContext(tok)
	require.NoError(t, OptionalAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	u, ok := CurrentUser(c)
	require.True(t, ok)
	assert.Equal(t, uint64(7), u.ID)
}

func TestOptionalAuthInfraErrorAborts(t *testing.T) {
	// A store outage must not silently downgrade callers to anonymous.
	f := newGateFixture(t)
	tok := f.addUser(t, model.User{ID: 7, IsActive: true})
	f.blacklist.err = errors.New("connection refused")

	c, rec := newContext(tok)
	require.NoError(t, OptionalAuth(f.gate)(okHandler)(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
