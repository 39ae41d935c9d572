package repository

import (
	"context"
	"database/sql"
	"time"
)

// BlacklistRepo persists revoked token identifiers in the 'token_blacklist'
// table. Presence of a jti row rejects the token regardless of signature
// and expiry; rows are append-only.
type BlacklistRepo struct{ DB *sql.DB }

func NewBlacklistRepo(db *sql.DB) *BlacklistRepo { return &BlacklistRepo{DB: db} }

// Add records a revoked jti with its owner and the token's natural expiry.
// Inserting the same jti twice returns ErrTokenAlreadyRevoked; logout treats
// that as success since the token is already dead.
func (r *BlacklistRepo) Add(ctx context.Context, jti, username string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO token_blacklist (jti, username, expires_at) VALUES (?,?,?)",
		jti, username, expiresAt)
	if isDuplicateKey(err) {
		return ErrTokenAlreadyRevoked
	}
	return err
}

// IsBlacklisted reports whether a jti has been revoked. Single indexed
// lookup; runs on every authenticated request.
func (r *BlacklistRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM token_blacklist WHERE jti=?", jti).Scan(&n)
	return n > 0, err
}

// PurgeExpired deletes rows whose token would no longer verify anyway.
// Meant for a periodic janitor; correctness does not depend on it running.
func (r *BlacklistRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM token_blacklist WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
