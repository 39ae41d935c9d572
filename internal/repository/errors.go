// Package repository contains the raw-SQL persistence layer. Sentinel
// errors defined here let handlers distinguish failure scenarios without
// string matching: duplicates map to HTTP 409, missing rows to 404.
package repository

import (
	"errors"
	"strings"
)

// ErrUsernameExists is returned when a username uniqueness constraint is hit.
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is returned when an email uniqueness constraint is hit.
var ErrEmailExists = errors.New("email already exists")

// ErrTierNameExists is returned when a tier name uniqueness constraint is hit.
var ErrTierNameExists = errors.New("tier name already exists")

// ErrRateLimitExists is returned when a rate-limit policy already covers the
// same (tier, path) pair or reuses a policy name.
var ErrRateLimitExists = errors.New("rate limit policy already exists")

// ErrTokenAlreadyRevoked is returned when a jti is inserted into the
// blacklist twice. Token ids are unique at issuance, so callers other than
// a retried logout should treat this as an invariant violation.
var ErrTokenAlreadyRevoked = errors.New("token already revoked")

// isDuplicateKey reports whether err is a MySQL duplicate-entry violation
// (error 1062).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
