package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"connection-chat/internal/auth"
	"connection-chat/internal/models"
)

const (
	userIDKey = "userID"
	roleKey   = "role"
)

// AuthMiddleware validates the Authorization header and stores the caller in
// the gin context.
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// BearerToken extracts the token of a "Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// TokenFromRequest reads the bearer header, falling back to the token query
// parameter browsers use for websocket upgrades.
func TokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return BearerToken(header)
	}
	token := r.URL.Query().Get("token")
	return token, token != ""
}

// SetPrincipal stores the authenticated caller.
func SetPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(userIDKey, p.UserID)
	c.Set(roleKey, p.Role)
}

// Principal returns the caller stored by AuthMiddleware.
func Principal(c *gin.Context) (auth.Principal, bool) {
	userID := c.GetString(userIDKey)
	if userID == "" {
		return auth.Principal{}, false
	}
	role, _ := c.Get(roleKey)
	r, _ := role.(models.Role)
	return auth.Principal{UserID: userID, Role: r}, true
}
