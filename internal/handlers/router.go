package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/idempotency"
	"github.com/imrishuroy/go-order-saga/internal/metrics"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/queue"
)

// HandlerConfig groups dependencies for the HTTP layer.
type HandlerConfig struct {
	OrderStore       *orders.Store
	CatalogStore     *catalog.Store
	IdempotencyStore *idempotency.Store
	Jobs             *queue.Queue
	Metrics          *metrics.Service
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	registerOrderRoutes(r, cfg)
	registerProductRoutes(r, cfg)
	registerQueueRoutes(r, cfg)
	registerMetricsRoutes(r, cfg)

	return r
}
