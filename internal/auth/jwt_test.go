package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/models"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(Principal{UserID: "doc-1", Role: models.RoleDoctor}, "secret", time.Hour)
	require.NoError(t, err)

	p, err := NewJWTValidator("secret").ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "doc-1", Role: models.RoleDoctor}, p)
}

func TestValidateTokenRejects(t *testing.T) {
	v := NewJWTValidator("secret")
	ctx := context.Background()

	wrongKey, err := GenerateToken(Principal{UserID: "doc-1", Role: models.RoleDoctor}, "other", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(Principal{UserID: "doc-1", Role: models.RoleDoctor}, "secret", -time.Minute)
	require.NoError(t, err)
	badRole, err := GenerateToken(Principal{UserID: "doc-1", Role: models.Role("NURSE")}, "secret", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "doc-1", "role": "DOCTOR"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "DOCTOR"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not-a-token",
		"wrong key":  wrongKey,
		"expired":    expired,
		"bad role":   badRole,
		"alg none":   none,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGenerateTokenRequiresUser(t *testing.T) {
	_, err := GenerateToken(Principal{Role: models.RolePatient}, "secret", time.Hour)
	assert.Error(t, err)
}
