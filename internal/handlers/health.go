package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthReporter probes dependencies.
type HealthReporter interface {
	Report(ctx context.Context) (bool, map[string]string)
}

// RegisterHealthRoutes wires the liveness and readiness endpoints.
func RegisterHealthRoutes(router gin.IRoutes, reporter HealthReporter) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		healthy, checks := reporter.Report(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
	})
}
