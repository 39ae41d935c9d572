package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/davitbz/authgate/internal/model"
)

// UserStore is the slice of the user repository the resolver needs.
type UserStore interface {
	// GetByID returns the non-deleted user with the given id, or
	// sql.ErrNoRows when none exists.
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// BlacklistStore answers revocation queries. It sits on the hot path of
// every authenticated request, so implementations must be a single indexed
// lookup.
type BlacklistStore interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Resolver maps verified token claims to a live identity record. It never
// mutates state.
type Resolver struct {
	Users     UserStore
	Blacklist BlacklistStore
}

// NewResolver wires the resolver to its stores.
func NewResolver(users UserStore, blacklist BlacklistStore) *Resolver {
	return &Resolver{Users: users, Blacklist: blacklist}
}

// Resolve turns decoded claims into a user snapshot. Failure modes, in
// order: ErrTokenRevoked when the jti is blacklisted, ErrMalformedToken when
// the subject is absent or non-numeric, ErrUnknownIdentity when no
// non-deleted user matches. Store errors propagate untouched.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (model.User, error) {
	revoked, err := r.Blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return model.User{}, err
	}
	if revoked {
		return model.User{}, ErrTokenRevoked
	}

	if claims.Subject == "" {
		return model.User{}, ErrMalformedToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return model.User{}, ErrMalformedToken
	}

	u, err := r.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUnknownIdentity
		}
		return model.User{}, err
	}
	return u, nil
}
