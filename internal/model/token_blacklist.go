package model

import "time"

// TokenBlacklist records a revoked token identifier (jti). A token whose
// jti appears here is rejected at verification time regardless of its
// signature and expiry. Rows are append-only; a janitor may purge rows past
// ExpiresAt since the token would no longer verify anyway.
//
// Fields:
//  ID        – primary key identifier.
//  JTI       – unique token identifier embedded in the JWT.
//  Username  – owner of the revoked token, kept for audit queries.
//  ExpiresAt – natural expiry of the revoked token.
//  CreatedAt – when the revocation was recorded.
type TokenBlacklist struct {
	ID        uint64    // token_blacklist.id
	JTI       string    // token_blacklist.jti
	Username  string    // token_blacklist.username
	ExpiresAt time.Time // token_blacklist.expires_at
	CreatedAt time.Time // token_blacklist.created_at
}
