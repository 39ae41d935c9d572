package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/davitbz/authgate/internal/config"
	"github.com/davitbz/authgate/internal/model"
)

// TierStore is the slice of the tier repository the limiter needs.
type TierStore interface {
	GetByID(ctx context.Context, id uint64) (model.Tier, error)
}

// PolicyStore looks up a tier's rate-limit policy for a normalized path.
type PolicyStore interface {
	GetPolicy(ctx context.Context, tierID uint64, path string) (model.RateLimit, error)
}

// windowScript increments the counter for one (caller, path) key and sets
// the window expiry only on the first increment. A single round trip keeps
// concurrent callers from double-admitting past the limit or pushing the
// window forward on every request.
var windowScript = redis.NewScript(`
    local count = redis.call('INCR', KEYS[1])
    if count == 1 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
    end
    local ttl = redis.call('PTTL', KEYS[1])
    return { count, ttl }
`)

// RateLimiter admits or rejects requests against per-(caller, path)
// counters in Redis. Authenticated callers are bucketed by user id and may
// carry a tier-specific policy; everyone else shares the process defaults
// keyed by client IP. Counter-store failures fail closed: no counter, no
// admission.
type RateLimiter struct {
	cfg      config.RateLimitConfig
	rdb      *redis.Client
	tiers    TierStore
	policies PolicyStore
}

// NewRateLimiter wires the limiter. rdb must be non-nil when cfg.Enabled.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, tiers TierStore, policies PolicyStore) *RateLimiter {
	return &RateLimiter{cfg: cfg, rdb: rdb, tiers: tiers, policies: policies}
}

// NormalizePath canonicalizes a route template for policy lookup and
// counter keying: lower-cased, trailing slashes stripped. Echo's c.Path()
// already collapses path parameters into the template form
// (/api/v1/user/:username), so per-instance policy explosion cannot occur.
func NormalizePath(routePath string) string {
	p := strings.ToLower(strings.TrimRight(routePath, "/"))
	if p == "" {
		return "/"
	}
	return p
}

// callerKey buckets the request: user id when a guard resolved an identity,
// client IP otherwise.
func callerKey(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return "user:" + strconv.FormatUint(u.ID, 10)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// resolvePolicy picks the applicable (limit, period). Tier-specific policy
// rows win; a missing tier, a tier without a policy for this path, or an
// anonymous caller all fall back to the process defaults. Database errors
// propagate so the request fails closed.
func (rl *RateLimiter) resolvePolicy(ctx context.Context, c echo.Context, path string) (int, time.Duration, error) {
	u, ok := CurrentUser(c)
	if !ok || u.TierID == nil {
		return rl.cfg.DefaultLimit, rl.cfg.DefaultPeriod, nil
	}

	tier, err := rl.tiers.GetByID(ctx, *u.TierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ratelimit: user %d has no live tier; applying default policy", u.ID)
			return rl.cfg.DefaultLimit, rl.cfg.DefaultPeriod, nil
		}
		return 0, 0, err
	}

	policy, err := rl.policies.GetPolicy(ctx, tier.ID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ratelimit: tier %q has no policy for path %q; applying default policy", tier.Name, path)
			return rl.cfg.DefaultLimit, rl.cfg.DefaultPeriod, nil
		}
		return 0, 0, err
	}
	return policy.Limit, time.Duration(policy.Period) * time.Second, nil
}

// Middleware returns the Echo middleware enforcing the limiter. Place it
// after OptionalAuth so authenticated callers land in their own bucket.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	if !rl.cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			path := NormalizePath(c.Path())

			limit, period, err := rl.resolvePolicy(ctx, c, path)
			if err != nil {
				log.Printf("ratelimit: policy lookup failed: %v", err)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "rate limiter unavailable"})
			}

			if rl.rdb == nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "rate limiter unavailable"})
			}

			key := fmt.Sprintf("%s:%s:%s", rl.cfg.Prefix, callerKey(c), path)
			vals, err := windowScript.Run(ctx, rl.rdb, []string{key}, period.Milliseconds()).Int64Slice()
			if err != nil || len(vals) != 2 {
				log.Printf("ratelimit: counter update failed for key=%s: %v", key, err)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "rate limiter unavailable"})
			}
			count, ttlMs := vals[0], vals[1]

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				retry := int(math.Ceil(float64(ttlMs) / 1000.0))
				if retry < 0 {
					retry = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"retry_after": retry,
				})
			}
			return next(c)
		}
	}
}
