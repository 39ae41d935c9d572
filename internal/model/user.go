package model

import "time"

// User represents an application user record as stored in the `users`
// table. Each field corresponds to a column in the database. The json tags
// are omitted here because these structs are used internally by the
// repository layer; handlers define separate response types with
// appropriate JSON tags.
//
// Fields:
//  ID              – primary key identifier of the user.
//  Name            – display name.
//  Username        – unique login handle, immutable once created.
//  Email           – unique email address, usable as a login key.
//  PasswordHash    – bcrypt hashed password.
//  ProfileImageURL – avatar URL shown in profile responses.
//  IsActive        – whether the account may use authenticated endpoints.
//  IsSuperuser     – whether the account may use admin endpoints.
//  IsDeleted       – soft-delete flag; deleted users cannot authenticate.
//  TierID          – optional reference into the tiers table (nullable).
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
//  DeletedAt       – when the account was soft-deleted (null if live).
type User struct {
	ID              uint64     // users.id
	Name            string     // users.name
	Username        string     // users.username
	Email           string     // users.email
	PasswordHash    string     // users.password_hash
	ProfileImageURL string     // users.profile_image_url
	IsActive        bool       // users.is_active
	IsSuperuser     bool       // users.is_superuser
	IsDeleted       bool       // users.is_deleted
	TierID          *uint64    // users.tier_id (nullable)
	CreatedAt       time.Time  // users.created_at
	UpdatedAt       time.Time  // users.updated_at
	DeletedAt       *time.Time // users.deleted_at (nullable)
}
