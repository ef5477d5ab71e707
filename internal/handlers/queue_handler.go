package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/queue"
)

// jobView merges queue bookkeeping with the order it drives.
type jobView struct {
	JobID        string        `json:"jobId"`
	OrderID      string        `json:"orderId"`
	Status       string        `json:"status"`
	AttemptsMade int           `json:"attemptsMade"`
	FailedReason string        `json:"failedReason,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Order        *orders.Order `json:"order,omitempty"`
}

func registerQueueRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/api/queue/:status", func(c *gin.Context) {
		ctx := c.Request.Context()
		status := c.Param("status")

		switch status {
		case "waiting", "active", "delayed":
			jobs, err := cfg.Jobs.ListByStatus(ctx, queue.Status(status))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_list_failed"})
				return
			}
			c.JSON(http.StatusOK, jobViews(ctx, cfg, jobs))

		case "failed":
			// order history is the source of truth; dead-letter job records
			// contribute attempt counts where they were retained
			deadLetters, err := cfg.Jobs.ListByStatus(ctx, queue.StatusFailed)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_list_failed"})
				return
			}
			byOrder := map[string]queue.Job{}
			for _, j := range deadLetters {
				byOrder[j.OrderID] = j
			}

			failedOrders, err := cfg.OrderStore.ListByStates(ctx, []orders.State{orders.StatePaymentFailed, orders.StateCancelled}, 50)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "order_list_failed"})
				return
			}
			views := make([]jobView, 0, len(failedOrders))
			for i := range failedOrders {
				o := failedOrders[i]
				v := jobView{
					JobID:        "db-" + o.OrderID,
					OrderID:      o.OrderID,
					Status:       "failed",
					FailedReason: o.LastError,
					UpdatedAt:    o.UpdatedAt,
					Order:        &o,
				}
				if j, ok := byOrder[o.OrderID]; ok {
					v.JobID = j.JobID
					v.AttemptsMade = j.AttemptsMade
					if j.LastFailureReason != "" {
						v.FailedReason = j.LastFailureReason
					}
				}
				views = append(views, v)
			}
			c.JSON(http.StatusOK, views)

		case "completed":
			completed, err := cfg.OrderStore.ListByStates(ctx, []orders.State{orders.StateCompleted}, 50)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "order_list_failed"})
				return
			}
			views := make([]jobView, 0, len(completed))
			for i := range completed {
				o := completed[i]
				views = append(views, jobView{
					JobID:     "db-" + o.OrderID,
					OrderID:   o.OrderID,
					Status:    "completed",
					UpdatedAt: o.UpdatedAt,
					Order:     &o,
				})
			}
			c.JSON(http.StatusOK, views)

		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		}
	})
}

func jobViews(ctx context.Context, cfg HandlerConfig, jobs []queue.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{
			JobID:        j.JobID,
			OrderID:      j.OrderID,
			Status:       string(j.Status),
			AttemptsMade: j.AttemptsMade,
			FailedReason: j.LastFailureReason,
			UpdatedAt:    j.UpdatedAt,
		}
		if o, err := cfg.OrderStore.Get(ctx, j.OrderID); err == nil {
			v.Order = o
		}
		views = append(views, v)
	}
	return views
}
