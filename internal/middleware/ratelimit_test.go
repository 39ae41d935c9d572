package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davitbz/authgate/internal/config"
	"github.com/davitbz/authgate/internal/model"
)

type fakeTiers struct {
	tiers map[uint64]model.Tier
	err   error
}

func (f *fakeTiers) GetByID(_ context.Context, id uint64) (model.Tier, error) {
	if f.err != nil {
		return model.Tier{}, f.err
	}
	t, ok := f.tiers[id]
	if !ok {
		return model.Tier{}, sql.ErrNoRows
	}
	return t, nil
}

type fakePolicies struct {
	policies map[string]model.RateLimit // keyed by path, single tier in tests
	err      error
}

func (f *fakePolicies) GetPolicy(_ context.Context, _ uint64, path string) (model.RateLimit, error) {
	if f.err != nil {
		return model.RateLimit{}, f.err
	}
	p, ok := f.policies[path]
	if !ok {
		return model.RateLimit{}, sql.ErrNoRows
	}
	return p, nil
}

func testLimiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  3,
		DefaultPeriod: time.Minute,
		Prefix:        "ratelimit",
	}
}

func newLimiter(t *testing.T, cfg config.RateLimitConfig, tiers TierStore, policies PolicyStore) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewRateLimiter(cfg, rdb, tiers, policies), srv
}

// limiterContext builds an echo context routed at path, optionally with a
// resolved user, sharing one client IP across calls.
func limiterContext(path string, user *model.User) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetPath(path)
	if user != nil {
		c.Set(userContextKey, *user)
	}
	return c, rec
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/tier", NormalizePath("/API/v1/Tier/"))
	assert.Equal(t, "/api/v1/tier", NormalizePath("/api/v1/tier///"))
	assert.Equal(t, "/", NormalizePath("/"))
	assert.Equal(t, "/", NormalizePath(""))
}

func TestLimiterAdmitsUpToLimitThen429(t *testing.T) {
	rl, _ := newLimiter(t, testLimiterConfig(), &fakeTiers{}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)

	for i := 0; i < 3; i++ {
		c, rec := limiterContext("/api/v1/tier", nil)
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be admitted", i+1)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	c, rec := limiterContext("/api/v1/tier", nil)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestLimiterWindowResets(t *testing.T) {
	rl, srv := newLimiter(t, testLimiterConfig(), &fakeTiers{}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)

	for i := 0; i < 4; i++ {
		c, _ := limiterContext("/api/v1/tier", nil)
		require.NoError(t, mw(c))
	}

	srv.FastForward(61 * time.Second)

	c, rec := limiterContext("/api/v1/tier", nil)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterSeparateBucketsPerCallerAndPath(t *testing.T) {
	rl, _ := newLimiter(t, testLimiterConfig(), &fakeTiers{}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)

	// Exhaust the anonymous bucket on one path.
	for i := 0; i < 4; i++ {
		c, _ := limiterContext("/api/v1/tier", nil)
		require.NoError(t, mw(c))
	}

	// A different path still admits.
	c, rec := limiterContext("/api/v1/user", nil)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// An authenticated caller on the exhausted path still admits.
	u := model.User{ID: 7, IsActive: true}
	c, rec = limiterContext("/api/v1/tier", &u)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterTierPolicyOverridesDefault(t *testing.T) {
	tierID := uint64(3)
	tiers := &fakeTiers{tiers: map[uint64]model.Tier{tierID: {ID: tierID, Name: "pro"}}}
	policies := &fakePolicies{policies: map[string]model.RateLimit{
		"/api/v1/tier": {ID: 1, TierID: tierID, Path: "/api/v1/tier", Limit: 5, Period: 60},
	}}

	rl, _ := newLimiter(t, testLimiterConfig(), tiers, policies)
	mw := rl.Middleware()(okHandler)
	u := model.User{ID: 7, IsActive: true, TierID: &tierID}

	for i := 0; i < 5; i++ {
		c, rec := limiterContext("/api/v1/tier", &u)
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be admitted", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	c, rec := limiterContext("/api/v1/tier", &u)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLimiterMissingTierFallsBackToDefault(t *testing.T) {
	tierID := uint64(99) // not in the store
	rl, _ := newLimiter(t, testLimiterConfig(), &fakeTiers{tiers: map[uint64]model.Tier{}}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)
	u := model.User{ID: 7, IsActive: true, TierID: &tierID}

	c, rec := limiterContext("/api/v1/tier", &u)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestLimiterFailsClosedOnCounterOutage(t *testing.T) {
	rl, srv := newLimiter(t, testLimiterConfig(), &fakeTiers{}, &fakePolicies{})
	srv.Close()
	mw := rl.Middleware()(okHandler)

	c, rec := limiterContext("/api/v1/tier", nil)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limiter unavailable")
}

func TestLimiterFailsClosedOnPolicyOutage(t *testing.T) {
	tierID := uint64(3)
	tiers := &fakeTiers{err: errors.New("connection refused")}
	rl, _ := newLimiter(t, testLimiterConfig(), tiers, &fakePolicies{})
	mw := rl.Middleware()(okHandler)
	u := model.User{ID: 7, IsActive: true, TierID: &tierID}

	c, rec := limiterContext("/api/v1/tier", &u)
	require.NoError(t, mw(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLimiterDisabledPassesThrough(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.Enabled = false
	rl := NewRateLimiter(cfg, nil, &fakeTiers{}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)

	for i := 0; i < 10; i++ {
		c, rec := limiterContext("/api/v1/tier", nil)
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLimiterConcurrentAdmitsExactlyLimit(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.DefaultLimit = 5
	rl, _ := newLimiter(t, cfg, &fakeTiers{}, &fakePolicies{})
	mw := rl.Middleware()(okHandler)

	var admitted, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, rec := limiterContext("/api/v1/tier", nil)
			if err := mw(c); err != nil {
				return
			}
			switch rec.Code {
			case http.StatusOK:
				atomic.AddInt64(&admitted, 1)
			case http.StatusTooManyRequests:
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted)
	assert.Equal(t, int64(15), rejected)
}
