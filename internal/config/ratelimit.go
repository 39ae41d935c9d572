package config

import "time"

// RateLimitConfig defines the limiter's process-wide defaults. Tier-specific
// policies stored in the database override DefaultLimit/DefaultPeriod per
// (tier, path). Anonymous callers, users without a tier and tiers without a
// matching policy all fall back to these values.
type RateLimitConfig struct {
	Enabled       bool          // disable to let every request through (dev only)
	DefaultLimit  int           // default requests per window
	DefaultPeriod time.Duration // default window length
	Prefix        string        // redis key namespace
}

// LoadRateLimitConfig reads environment variables to build a
// RateLimitConfig. Defaults are used when variables are not set.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:       getenv("RATE_LIMIT_ENABLED", "true") == "true",
		DefaultLimit:  atoi(getenv("RATE_LIMIT_DEFAULT_LIMIT", "10")),
		DefaultPeriod: time.Duration(atoi(getenv("RATE_LIMIT_DEFAULT_PERIOD", "3600"))) * time.Second,
		Prefix:        getenv("RATE_LIMIT_PREFIX", "ratelimit"),
	}
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 1
	}
	if cfg.DefaultPeriod <= 0 {
		cfg.DefaultPeriod = time.Hour
	}
	return cfg
}
