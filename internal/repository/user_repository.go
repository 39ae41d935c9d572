package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/davitbz/authgate/internal/model"
)

const userColumns = "id,name,username,email,password_hash,profile_image_url,is_active,is_superuser,is_deleted,tier_id,created_at,updated_at,deleted_at"

// UserRepo gives access to the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.ProfileImageURL, &u.IsActive, &u.IsSuperuser, &u.IsDeleted,
		&u.TierID, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

// Create inserts a user and returns its ID. The caller supplies an already
// hashed password. Username and email collisions surface as sentinel errors.
func (r *UserRepo) Create(ctx context.Context, name, username, email, passwordHash string) (uint64, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, username, email, password_hash) VALUES (?,?,?,?)",
		name, username, email, passwordHash)
	if err != nil {
		if isDuplicateKey(err) {
			if strings.Contains(err.Error(), "email") {
				return 0, ErrEmailExists
			}
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a non-deleted user by id. Returns sql.ErrNoRows when the
// user is absent or soft-deleted.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND is_deleted=0 LIMIT 1", id))
}

// GetByUsername fetches a non-deleted user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? AND is_deleted=0 LIMIT 1", username))
}

// GetByEmail fetches a non-deleted user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND is_deleted=0 LIMIT 1", email))
}

// GetByLogin resolves either identifier form: values containing '@' are
// looked up as emails, everything else as usernames. Both forms resolve to
// the same account for the same person.
func (r *UserRepo) GetByLogin(ctx context.Context, usernameOrEmail string) (model.User, error) {
	if strings.Contains(usernameOrEmail, "@") {
		return r.GetByEmail(ctx, usernameOrEmail)
	}
	return r.GetByUsername(ctx, usernameOrEmail)
}

// UsernameExists reports whether any user (deleted or not) holds username.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username=?", username).Scan(&n)
	return n > 0, err
}

// EmailExists reports whether any user (deleted or not) holds email.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email=?", email).Scan(&n)
	return n > 0, err
}

// List returns a page of non-deleted users ordered by id.
func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE is_deleted=0 ORDER BY id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
			&u.ProfileImageURL, &u.IsActive, &u.IsSuperuser, &u.IsDeleted,
			&u.TierID, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the number of non-deleted users.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE is_deleted=0").Scan(&n)
	return n, err
}

// UpdateProfile updates the mutable profile fields of a user.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, username, email, profileImageURL string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, username=?, email=?, profile_image_url=?, updated_at=NOW() WHERE id=? AND is_deleted=0",
		name, username, email, profileImageURL, id)
	if isDuplicateKey(err) {
		if strings.Contains(err.Error(), "email") {
			return ErrEmailExists
		}
		return ErrUsernameExists
	}
	return err
}

// SetTier assigns a tier to a user. Returns sql.ErrNoRows when no live user
// matched.
func (r *UserRepo) SetTier(ctx context.Context, id, tierID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET tier_id=?, updated_at=NOW() WHERE id=? AND is_deleted=0",
		tierID, id)
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

// SoftDelete marks a user deleted. Tokens already issued stop resolving
// because every lookup filters on is_deleted.
func (r *UserRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_deleted=1, deleted_at=NOW(), updated_at=NOW() WHERE id=? AND is_deleted=0", id)
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

// HardDelete removes the row entirely. Superuser-only cleanup path.
func (r *UserRepo) HardDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
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
