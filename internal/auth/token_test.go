package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davitbz/authgate/internal/model"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func testUser() model.User {
	return model.User{ID: 42, Username: "alice", Email: "alice@example.com", IsActive: true}
}

func TestIssueAndDecodeAccess(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := codec.IssueAccess(testUser())
	require.NoError(t, err)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID, "every token needs a jti for revocation")
	assert.NoError(t, RequireKind(claims, KindAccess))
}

func TestIssueRefreshOmitsEmail(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := codec.IssueRefresh(testUser())
	require.NoError(t, err)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
	assert.Equal(t, "alice", claims.Username)
	assert.Empty(t, claims.Email)
}

func TestDecodeExpired(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, -time.Minute, 24*time.Hour)

	raw, err := codec.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = codec.Decode(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestDecodeTampered(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := codec.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = codec.Decode(raw + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.Decode("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeWrongKey(t *testing.T) {
	signer := testKey(t)
	other := testKey(t)

	issuing := NewCodec(signer, &signer.PublicKey, 15*time.Minute, 24*time.Hour)
	verifying := NewCodec(other, &other.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := issuing.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = verifying.Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireKindMismatch(t *testing.T) {
	key := testKey(t)
	codec := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := codec.IssueRefresh(testUser())
	require.NoError(t, err)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.ErrorIs(t, RequireKind(claims, KindAccess), ErrWrongTokenKind)
}

func TestVerificationOnlyCodec(t *testing.T) {
	key := testKey(t)
	issuing := NewCodec(key, &key.PublicKey, 15*time.Minute, 24*time.Hour)
	verifyOnly := NewCodec(nil, &key.PublicKey, 15*time.Minute, 24*time.Hour)

	raw, err := issuing.IssueAccess(testUser())
	require.NoError(t, err)

	claims, err := verifyOnly.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	_, err = verifyOnly.IssueAccess(testUser())
	assert.Error(t, err)
}
