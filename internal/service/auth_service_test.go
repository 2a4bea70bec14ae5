package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforma/planforma-api/internal/models"
)

func signedToken(t *testing.T, secret string, method jwt.SigningMethod, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret")
	claims := models.JWTClaims{
		UserID: "user-1",
		Role:   models.RolePlanner,
		Email:  "planner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	parsed, err := svc.ValidateToken(signedToken(t, "test-secret", jwt.SigningMethodHS256, claims))

	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, models.RolePlanner, parsed.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewAuthService("test-secret")
	claims := models.JWTClaims{UserID: "user-1"}

	_, err := svc.ValidateToken(signedToken(t, "other-secret", jwt.SigningMethodHS256, claims))

	assert.Error(t, err)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	svc := NewAuthService("test-secret")
	claims := models.JWTClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}

	_, err := svc.ValidateToken(signedToken(t, "test-secret", jwt.SigningMethodHS256, claims))

	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret")

	_, err := svc.ValidateToken("not-a-token")

	assert.Error(t, err)
}
