package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/runner"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" once every run slot is taken.
func Health(rm *runner.Manager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, limit := rm.Active(), rm.MaxRuns()

		status := "healthy"
		if limit > 0 && active >= limit {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveRuns: active,
			MaxRuns:    limit,
			Version:    models.Version,
		})
	}
}
