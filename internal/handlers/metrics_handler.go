package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func registerMetricsRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/api/metrics", func(c *gin.Context) {
		snap, err := cfg.Metrics.Get(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics_failed"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.POST("/api/metrics/reset", func(c *gin.Context) {
		if err := cfg.Metrics.Reset(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reset_failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
