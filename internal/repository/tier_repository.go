package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/davitbz/authgate/internal/model"
)

// TierRepo gives access to the 'tiers' table.
type TierRepo struct{ DB *sql.DB }

func NewTierRepo(db *sql.DB) *TierRepo { return &TierRepo{DB: db} }

// Create inserts a tier and returns its ID.
func (r *TierRepo) Create(ctx context.Context, name string) (uint64, error) {
	name = strings.TrimSpace(name)
	res, err := r.DB.ExecContext(ctx, "INSERT INTO tiers (name) VALUES (?)", name)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrTierNameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a non-deleted tier by id.
func (r *TierRepo) GetByID(ctx context.Context, id uint64) (model.Tier, error) {
	var t model.Tier
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,is_deleted,created_at,updated_at FROM tiers WHERE id=? AND is_deleted=0 LIMIT 1",
		id).Scan(&t.ID, &t.Name, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetByName fetches a non-deleted tier by name.
func (r *TierRepo) GetByName(ctx context.Context, name string) (model.Tier, error) {
	name = strings.TrimSpace(name)
	var t model.Tier
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,is_deleted,created_at,updated_at FROM tiers WHERE name=? AND is_deleted=0 LIMIT 1",
		name).Scan(&t.ID, &t.Name, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// List returns a page of non-deleted tiers ordered by id.
func (r *TierRepo) List(ctx context.Context, offset, limit int) ([]model.Tier, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,is_deleted,created_at,updated_at FROM tiers WHERE is_deleted=0 ORDER BY id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tier
	for rows.Next() {
		var t model.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of non-deleted tiers.
func (r *TierRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiers WHERE is_deleted=0").Scan(&n)
	return n, err
}

// Rename updates a tier's name. Returns sql.ErrNoRows when no live tier
// matched.
func (r *TierRepo) Rename(ctx context.Context, id uint64, name string) error {
	name = strings.TrimSpace(name)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tiers SET name=?, updated_at=NOW() WHERE id=? AND is_deleted=0", name, id)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrTierNameExists
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

// SoftDelete marks a tier deleted. Users keep their tier_id; the limiter
// treats a deleted tier as absent and falls back to the default policy.
func (r *TierRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tiers SET is_deleted=1, updated_at=NOW() WHERE id=? AND is_deleted=0", id)
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
