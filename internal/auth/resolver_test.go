package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davitbz/authgate/internal/model"
)

type fakeUserStore struct {
	users map[uint64]model.User
	err   error
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

type fakeBlacklistStore struct {
	revoked map[string]bool
	err     error
}

func (f *fakeBlacklistStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func accessClaims(sub, jti string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ID: jti},
		Kind:             KindAccess,
		Username:         "alice",
	}
}

func TestResolveSuccess(t *testing.T) {
	r := NewResolver(
		&fakeUserStore{users: map[uint64]model.User{7: {ID: 7, Username: "alice", IsActive: true}}},
		&fakeBlacklistStore{},
	)

	u, err := r.Resolve(context.Background(), accessClaims("7", "jti-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.ID)
	assert.Equal(t, "alice", u.Username)
}

func TestResolveRevoked(t *testing.T) {
	r := NewResolver(
		&fakeUserStore{users: map[uint64]model.User{7: {ID: 7}}},
		&fakeBlacklistStore{revoked: map[string]bool{"jti-1": true}},
	)

	_, err := r.Resolve(context.Background(), accessClaims("7", "jti-1"))
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestResolveMalformedSubject(t *testing.T) {
	r := NewResolver(&fakeUserStore{}, &fakeBlacklistStore{})

	for _, sub := range []string{"", "alice", "-1", "12x"} {
		_, err := r.Resolve(context.Background(), accessClaims(sub, "jti-1"))
		assert.ErrorIs(t, err, ErrMalformedToken, "subject %q", sub)
	}
}

func TestResolveUnknownIdentity(t *testing.T) {
	r := NewResolver(&fakeUserStore{users: map[uint64]model.User{}}, &fakeBlacklistStore{})

	_, err := r.Resolve(context.Background(), accessClaims("99", "jti-1"))
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestResolveStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("connection refused")

	r := NewResolver(&fakeUserStore{err: boom}, &fakeBlacklistStore{})
	_, err := r.Resolve(context.Background(), accessClaims("7", "jti-1"))
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsAuthFailure(err), "infrastructure errors must not look like auth failures")

	r = NewResolver(&fakeUserStore{}, &fakeBlacklistStore{err: boom})
	_, err = r.Resolve(context.Background(), accessClaims("7", "jti-1"))
	assert.ErrorIs(t, err, boom)
}

func TestGateAuthenticate(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)
	user := model.User{ID: 7, Username: "alice", Email: "alice@example.com", IsActive: true}

	gate := NewGate(codec, NewResolver(
		&fakeUserStore{users: map[uint64]model.User{7: user}},
		&fakeBlacklistStore{},
	))

	access, err := codec.IssueAccess(user)
	require.NoError(t, err)
	got, err := gate.Authenticate(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Refresh tokens must not pass the access gate, and vice versa.
	refresh, err := codec.IssueRefresh(user)
	require.NoError(t, err)
	_, err = gate.Authenticate(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	_, err = gate.AuthenticateRefresh(context.Background(), access)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	got, err = gate.AuthenticateRefresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestGateAuthenticateRefreshChecksBlacklist(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)
	user := model.User{ID: 7, Username: "alice"}

	bl := &fakeBlacklistStore{revoked: map[string]bool{}}
	gate := NewGate(codec, NewResolver(
		&fakeUserStore{users: map[uint64]model.User{7: user}},
		bl,
	))

	refresh, err := codec.IssueRefresh(user)
	require.NoError(t, err)

	claims, err := codec.Decode(refresh)
	require.NoError(t, err)
	bl.revoked[claims.ID] = true

	_, err = gate.AuthenticateRefresh(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
