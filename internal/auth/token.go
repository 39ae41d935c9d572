package auth

import (
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/davitbz/authgate/internal/model"
)

// Token kinds carried in the "type" claim. Access and refresh tokens are
// structurally identical JWTs; only the claim set and lifetime differ.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the payload of every token this service issues. Refresh tokens
// deliberately carry fewer claims than access tokens (no email) so a leaked
// refresh token exposes less.
type Claims struct {
	jwt.RegisteredClaims
	Kind     string `json:"type"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Codec signs and verifies RS256 tokens. The private key may be nil for
// verification-only deployments; Issue fails in that case while Decode keeps
// working with just the public key.
type Codec struct {
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec builds a Codec. accessTTL is minutes-scale, refreshTTL
// days-scale; both come from configuration.
func NewCodec(priv *rsa.PrivateKey, pub *rsa.PublicKey, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{priv: priv, pub: pub, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

var errNoSigningKey = errors.New("codec has no signing key (verification-only)")

// IssueAccess signs a short-lived access token for the user. The subject is
// the decimal user id, the jti is a fresh UUID, and username/email ride
// along so downstream services can label requests without a user lookup.
func (c *Codec) IssueAccess(u model.User) (string, error) {
	return c.issue(KindAccess, u, c.accessTTL, true)
}

// IssueRefresh signs a long-lived refresh token. It carries the username but
// not the email.
func (c *Codec) IssueRefresh(u model.User) (string, error) {
	return c.issue(KindRefresh, u, c.refreshTTL, false)
}

func (c *Codec) issue(kind string, u model.User, ttl time.Duration, withEmail bool) (string, error) {
	if c.priv == nil {
		return "", errNoSigningKey
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:     kind,
		Username: u.Username,
	}
	if withEmail {
		claims.Email = u.Email
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.priv)
}

// Decode parses and verifies a token string. It returns ErrTokenExpired for
// otherwise-valid tokens past their exp, and ErrInvalidToken for bad
// signatures, malformed input or a non-RS256 signing method. No claim may be
// trusted unless Decode succeeds.
func (c *Codec) Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return c.pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireKind rejects claims whose "type" does not match the expected kind.
// Call sites that need a refresh token must never accept an access token and
// vice versa.
func RequireKind(claims *Claims, kind string) error {
	if claims.Kind != kind {
		return ErrWrongTokenKind
	}
	return nil
}
