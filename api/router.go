package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/carscout/api/handler"
	"github.com/use-agent/carscout/api/middleware"
	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/runner"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// ctx bounds the rate limiter's background sweeper.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(ctx context.Context, rm *runner.Manager, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(rm, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.POST("/runs", handler.PostRun(rm))
	protected.GET("/runs", handler.ListRuns(rm))
	protected.GET("/runs/:id", handler.GetRun(rm))
	protected.GET("/runs/:id/checkpoints", handler.GetCheckpoints(rm))

	return r
}
