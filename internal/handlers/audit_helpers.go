package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"connection-chat/internal/middleware"
)

const requestIDContextKey = "request_id"

// RequestID assigns every request an id, reusing X-Request-ID when the caller
// sent one, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", requestIDFromContext(c))
		c.Next()
	}
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if p, ok := middleware.Principal(c); ok {
		userID := p.UserID
		return &userID
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}

	return nil
}
