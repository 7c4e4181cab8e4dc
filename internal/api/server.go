package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fleetops/telemetry-trainer/internal/api/middleware"
	"github.com/fleetops/telemetry-trainer/internal/config"
)

// Router assembles the admin API around the handler set.
func Router(cfg config.ServerConfig, h *Handler) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.Logger(),
		middleware.Recovery(),
		cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		}),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/runs", h.ListRuns)
		v1.GET("/runs/:ds", h.GetRun)
		v1.POST("/runs/:ds/trigger", h.TriggerRun)
		v1.GET("/partitions/:ds", h.GetPartition)
		v1.POST("/cache/invalidate", h.InvalidateCache)
	}

	return router
}
