package reviewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	service := NewTokenService("test-secret-key", "veritas-test", time.Hour)

	token, err := service.GenerateToken("ana", RoleSupervisor)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.ReviewerID)
	assert.Equal(t, RoleSupervisor, claims.Role)
	assert.Equal(t, "veritas-test", claims.Issuer)
	assert.Equal(t, "ana", claims.Subject)
}

func TestTokenService_GenerateToken_InvalidClaims(t *testing.T) {
	service := NewTokenService("test-secret-key", "veritas-test", time.Hour)

	_, err := service.GenerateToken("", RoleReviewer)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = service.GenerateToken("ana", "admin")
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestTokenService_ValidateToken_Invalid(t *testing.T) {
	service := NewTokenService("test-secret-key", "veritas-test", time.Hour)
	other := NewTokenService("other-secret", "veritas-test", time.Hour)
	wrongIssuer := NewTokenService("test-secret-key", "someone-else", time.Hour)

	foreign, err := other.GenerateToken("ana", RoleReviewer)
	require.NoError(t, err)
	misissued, err := wrongIssuer.GenerateToken("ana", RoleReviewer)
	require.NoError(t, err)

	tests := []struct {
		name        string
		token       string
		expectedErr error
	}{
		{name: "invalid token format", token: "invalid.token.format", expectedErr: ErrInvalidToken},
		{name: "empty token", token: "", expectedErr: ErrInvalidToken},
		{name: "wrong secret", token: foreign, expectedErr: ErrInvalidToken},
		{name: "wrong issuer", token: misissued, expectedErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestTokenService_ValidateToken_Expired(t *testing.T) {
	service := NewTokenService("test-secret-key", "veritas-test", -time.Hour)

	token, err := service.GenerateToken("ana", RoleReviewer)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCanRevoke(t *testing.T) {
	assert.True(t, CanRevoke(RoleSupervisor))
	assert.False(t, CanRevoke(RoleReviewer))
	assert.False(t, CanRevoke(""))
}
