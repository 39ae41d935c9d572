package auth

import (
	"context"

	"github.com/davitbz/authgate/internal/model"
)

// Gate composes the token codec with the identity resolver. It is the one
// entry point the HTTP layer uses to turn a raw bearer token into a user.
type Gate struct {
	Codec    *Codec
	Resolver *Resolver
}

// NewGate builds a Gate.
func NewGate(codec *Codec, resolver *Resolver) *Gate {
	return &Gate{Codec: codec, Resolver: resolver}
}

// Authenticate verifies a raw access token end to end: signature and expiry
// via the codec, kind check, blacklist consultation and identity lookup via
// the resolver. All failures are one of the enumerated auth errors or an
// infrastructure error from a store.
func (g *Gate) Authenticate(ctx context.Context, rawToken string) (model.User, error) {
	claims, err := g.Codec.Decode(rawToken)
	if err != nil {
		return model.User{}, err
	}
	if err := RequireKind(claims, KindAccess); err != nil {
		return model.User{}, err
	}
	return g.Resolver.Resolve(ctx, claims)
}

// AuthenticateRefresh is the refresh-flow counterpart: it accepts only
// refresh-kind tokens and resolves the identity the same way. The presented
// refresh token is not rotated or blacklisted here; it stays valid until its
// natural expiry unless explicitly revoked.
func (g *Gate) AuthenticateRefresh(ctx context.Context, rawToken string) (model.User, error) {
	claims, err := g.Codec.Decode(rawToken)
	if err != nil {
		return model.User{}, err
	}
	if err := RequireKind(claims, KindRefresh); err != nil {
		return model.User{}, err
	}
	return g.Resolver.Resolve(ctx, claims)
}
