package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/idempotency"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/validation"
)

func registerOrderRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	guard := idempotency.Middleware(cfg.IdempotencyStore)

	// create-order is the one guarded operation: retransmissions with the same
	// Idempotency-Key must not create a second order or enqueue a second job
	r.POST("/api/orders", guard, func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		productIDs := make([]string, 0, len(req.Items))
		for _, it := range req.Items {
			productIDs = append(productIDs, it.ProductID)
		}
		products, err := cfg.CatalogStore.GetMany(ctx, productIDs)
		if err != nil {
			if errors.Is(err, catalog.ErrUnknownProduct) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_product", "msg": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog_lookup_failed"})
			return
		}

		// amount is computed once here and immutable afterwards
		var amount float64
		items := make([]orders.Item, 0, len(req.Items))
		for _, it := range req.Items {
			p := products[it.ProductID]
			amount += p.Price * float64(it.Quantity)
			items = append(items, orders.Item{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
			})
		}

		order := orders.Order{
			OrderID: uuid.NewString(),
			UserID:  req.UserID,
			Amount:  amount,
			Items:   items,
			State:   orders.StateCreated,
		}
		if err := cfg.OrderStore.Create(ctx, order); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed"})
			return
		}

		job, err := cfg.Jobs.Enqueue(ctx, order.OrderID)
		if err != nil {
			// the order exists but will never progress; surface the failure so
			// the client can retry under the same key once the record unlocks
			log.Printf("[api] enqueue failed for order %s: %v", order.OrderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		created, err := cfg.OrderStore.Get(ctx, order.OrderID)
		if err != nil || created == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_lookup_failed"})
			return
		}

		c.Header("Location", "/api/orders/"+order.OrderID)
		c.JSON(http.StatusCreated, gin.H{"order": created, "jobId": job.JobID})
	})

	r.GET("/api/orders", func(c *gin.Context) {
		list, err := cfg.OrderStore.List(c.Request.Context(), 20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_list_failed"})
			return
		}
		if list == nil {
			list = []orders.Order{}
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/orders/:id", func(c *gin.Context) {
		order, err := cfg.OrderStore.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_lookup_failed"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})
}
