package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/davitbz/authgate/internal/model"
)

const rateLimitColumns = "id,tier_id,name,path,`limit`,period,created_at,updated_at"

// RateLimitRepo gives access to the 'rate_limits' table, which stores
// tier-specific rate limiting policies keyed by normalized route path.
type RateLimitRepo struct{ DB *sql.DB }

func NewRateLimitRepo(db *sql.DB) *RateLimitRepo { return &RateLimitRepo{DB: db} }

func scanRateLimit(row *sql.Row) (model.RateLimit, error) {
	var rl model.RateLimit
	err := row.Scan(&rl.ID, &rl.TierID, &rl.Name, &rl.Path, &rl.Limit, &rl.Period,
		&rl.CreatedAt, &rl.UpdatedAt)
	return rl, err
}

// Create inserts a policy and returns its ID. Both the policy name and the
// (tier_id, path) pair are unique.
func (r *RateLimitRepo) Create(ctx context.Context, tierID uint64, name, path string, limit, period int) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO rate_limits (tier_id, name, path, `limit`, period) VALUES (?,?,?,?,?)",
		tierID, strings.TrimSpace(name), path, limit, period)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrRateLimitExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches one policy scoped to a tier.
func (r *RateLimitRepo) GetByID(ctx context.Context, tierID, id uint64) (model.RateLimit, error) {
	return scanRateLimit(r.DB.QueryRowContext(ctx,
		"SELECT "+rateLimitColumns+" FROM rate_limits WHERE tier_id=? AND id=? LIMIT 1", tierID, id))
}

// GetPolicy returns the policy for a (tier, path) pair. This is the hot-path
// lookup the limiter performs per authenticated request; (tier_id, path) is
// a unique index. Returns sql.ErrNoRows when the tier has no policy for the
// path, in which case the caller applies the process-wide default.
func (r *RateLimitRepo) GetPolicy(ctx context.Context, tierID uint64, path string) (model.RateLimit, error) {
	return scanRateLimit(r.DB.QueryRowContext(ctx,
		"SELECT "+rateLimitColumns+" FROM rate_limits WHERE tier_id=? AND path=? LIMIT 1", tierID, path))
}

// ListByTier returns a page of a tier's policies ordered by id.
func (r *RateLimitRepo) ListByTier(ctx context.Context, tierID uint64, offset, limit int) ([]model.RateLimit, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+rateLimitColumns+" FROM rate_limits WHERE tier_id=? ORDER BY id LIMIT ? OFFSET ?",
		tierID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RateLimit
	for rows.Next() {
		var rl model.RateLimit
		if err := rows.Scan(&rl.ID, &rl.TierID, &rl.Name, &rl.Path, &rl.Limit, &rl.Period,
			&rl.CreatedAt, &rl.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

// CountByTier returns the number of policies a tier holds.
func (r *RateLimitRepo) CountByTier(ctx context.Context, tierID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rate_limits WHERE tier_id=?", tierID).Scan(&n)
	return n, err
}

// Update rewrites a policy's tunable fields. Returns sql.ErrNoRows when no
// policy matched the (tier, id) pair.
func (r *RateLimitRepo) Update(ctx context.Context, tierID, id uint64, name, path string, limit, period int) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE rate_limits SET name=?, path=?, `limit`=?, period=?, updated_at=NOW() WHERE tier_id=? AND id=?",
		strings.TrimSpace(name), path, limit, period, tierID, id)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrRateLimitExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a policy. Counters already running in the window keep
// their old expiry; new windows pick up the default.
func (r *RateLimitRepo) Delete(ctx context.Context, tierID, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM rate_limits WHERE tier_id=? AND id=?", tierID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
