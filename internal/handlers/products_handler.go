package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
)

func registerProductRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/api/products", func(c *gin.Context) {
		products, err := cfg.CatalogStore.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "product_list_failed"})
			return
		}
		if products == nil {
			products = []catalog.Product{}
		}
		c.JSON(http.StatusOK, products)
	})
}
