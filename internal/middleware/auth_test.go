package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/auth"
	"connection-chat/internal/models"
)

func newAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(auth.NewJWTValidator(secret)), func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter("secret")
	token, err := auth.GenerateToken(auth.Principal{UserID: "pat-1", Role: models.RolePatient}, "secret", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"pat-1","role":"PATIENT"}`, w.Body.String())
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	token, ok := TokenFromRequest(req)
	assert.True(t, ok)
	assert.Equal(t, "from-query", token)

	req.Header.Set("Authorization", "Bearer from-header")
	token, ok = TokenFromRequest(req)
	assert.True(t, ok)
	assert.Equal(t, "from-header", token)

	_, ok = TokenFromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.False(t, ok)
}
