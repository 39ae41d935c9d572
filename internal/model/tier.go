package model

import "time"

// Tier groups users for rate-limit policy assignment. A user belongs to at
// most one tier; tier-specific limits live in the rate_limits table.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – unique tier name (e.g. "free", "pro").
//  IsDeleted – soft-delete flag.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Tier struct {
	ID        uint64    // tiers.id
	Name      string    // tiers.name
	IsDeleted bool      // tiers.is_deleted
	CreatedAt time.Time // tiers.created_at
	UpdatedAt time.Time // tiers.updated_at
}
