package service

import (
	"testing"

	"fieldops-data/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	user := &domain.User{ID: "user-1", Email: "ana@example.com", Role: domain.RoleManager}

	access, refresh, err := issuer.IssuePair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := issuer.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, domain.RoleManager, claims.Role)

	refreshClaims, err := issuer.VerifyRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refreshClaims.UserID)
}

func TestTokenIssuer_WrongSecretRejected(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	other := NewTokenIssuer("different", "different")
	user := &domain.User{ID: "user-1", Email: "ana@example.com", Role: domain.RoleWorker}

	access, _, err := issuer.IssuePair(user)
	require.NoError(t, err)

	_, err = other.VerifyAccess(access)
	require.Error(t, err)
	assert.Equal(t, 401, domain.StatusOf(err))
}

func TestTokenIssuer_AccessTokenNotValidAsRefresh(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	user := &domain.User{ID: "user-1", Email: "ana@example.com", Role: domain.RoleWorker}

	access, _, err := issuer.IssuePair(user)
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	require.Error(t, err)
}

func TestTokenIssuer_GarbageRejected(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")

	_, err := issuer.VerifyAccess("not.a.token")
	require.Error(t, err)
	assert.Equal(t, 401, domain.StatusOf(err))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret-pass"))
}
