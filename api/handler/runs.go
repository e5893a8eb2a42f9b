package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/runner"
)

// PostRun returns a handler for POST /api/v1/runs.
//
// The run is validated synchronously and executed in the background;
// clients poll GET /api/v1/runs/:id.
func PostRun(rm *runner.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg models.RunConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidConfig, err.Error(), err))
			return
		}

		run, err := rm.Start(c.Request.Context(), cfg)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.RunAccepted{ID: run.ID, Status: run.Status})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(rm *runner.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := rm.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// ListRuns returns a handler for GET /api/v1/runs?status=&limit=.
func ListRuns(rm *runner.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := rm.List(c.Request.Context(), models.RunStatus(c.Query("status")), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if runs == nil {
			runs = []models.Run{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

// GetCheckpoints returns a handler for GET /api/v1/runs/:id/checkpoints.
func GetCheckpoints(rm *runner.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cps, err := rm.Checkpoints(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkpoints": cps})
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{Error: scrapeErr.ToDetail()})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidConfig:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeShuttingDown:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
