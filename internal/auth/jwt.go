package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"connection-chat/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller carried by a token.
type Principal struct {
	UserID string
	Role   models.Role
}

// TokenValidator turns a bearer token into a Principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (Principal, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 tokens issued by the account service.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator builds a validator for the shared signing secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken checks signature, expiry, subject and role.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Principal{UserID: c.Subject, Role: role}, nil
}

// GenerateToken signs a token for p. Used by tests and local tooling; production
// tokens come from the account service.
func GenerateToken(p Principal, secret string, ttl time.Duration) (string, error) {
	if p.UserID == "" {
		return "", errors.New("user ID cannot be empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
