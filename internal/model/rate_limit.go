package model

import "time"

// RateLimit is a tier-specific rate limiting policy for one normalized
// route path. A request governed by this policy may perform at most Limit
// calls per Period seconds. Paths are stored in normalized form (the route
// template, trailing slash stripped) so that /api/v1/user/alice and
// /api/v1/user/bob share a single policy row.
//
// Fields:
//  ID        – primary key identifier.
//  TierID    – tier this policy applies to.
//  Name      – unique human-readable policy name.
//  Path      – normalized route path, unique per tier.
//  Limit     – maximum number of requests per window.
//  Period    – window length in seconds.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type RateLimit struct {
	ID        uint64    // rate_limits.id
	TierID    uint64    // rate_limits.tier_id
	Name      string    // rate_limits.name
	Path      string    // rate_limits.path
	Limit     int       // rate_limits.limit
	Period    int       // rate_limits.period
	CreatedAt time.Time // rate_limits.created_at
	UpdatedAt time.Time // rate_limits.updated_at
}
