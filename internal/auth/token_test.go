package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommuneChat/server/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:       42,
		Username: "alice",
		Role:     models.RoleUser,
	}
}

func TestSignAndVerifyToken(t *testing.T) {
	token, err := SignToken(testUser(), KindAccess)
	require.NoError(t, err)

	claims, err := VerifyToken(token, KindAccess)
	require.NoError(t, err)

	assert.Equal(t, 42, claims.UserID())
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)
}

func TestVerifyTokenKindMismatch(t *testing.T) {
	token, err := SignToken(testUser(), KindRefresh)
	require.NoError(t, err)

	_, err = VerifyToken(token, KindAccess)
	assert.ErrorIs(t, err, ErrWrongKind)

	// KindAny skips the kind check entirely.
	claims, err := VerifyToken(token, KindAny)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
}

func TestVerifyTokenGarbage(t *testing.T) {
	_, err := VerifyToken("not-a-jwt", KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRevoked(t *testing.T) {
	token, err := SignToken(testUser(), KindAccess)
	require.NoError(t, err)

	Blacklist.Add(token)
	defer Blacklist.Remove(token)

	_, err = VerifyToken(token, KindAccess)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestExtractBearerToken(t *testing.T) {
	token, err := ExtractBearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = ExtractBearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractBearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractBearerToken("Bearer ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	token, err := TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "header-token", token)

	r = httptest.NewRequest("GET", "/ws?token=query-token", nil)
	token, err = TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "query-token", token)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestBlacklist(t *testing.T) {
	b := &TokenBlacklist{tokens: make(map[string]struct{})}

	assert.False(t, b.IsBlacklisted("tok"))
	b.Add("tok")
	assert.True(t, b.IsBlacklisted("tok"))
	assert.Equal(t, 1, b.Size())
	b.Remove("tok")
	assert.False(t, b.IsBlacklisted("tok"))
}
