package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"connection-chat/internal/telemetry"
)

// IdentityInvalidator drops a cached identity snapshot.
type IdentityInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, identities IdentityInvalidator, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// profile edits happen in another service; this lets operators force a refresh
	router.DELETE("/debug/identities/:user_id", func(c *gin.Context) {
		if identities == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity cache not configured"})
			return
		}
		if err := identities.Invalidate(c.Request.Context(), c.Param("user_id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
