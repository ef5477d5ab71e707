package metrics

import (
	"context"
	"fmt"
	"log"

	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/idempotency"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/queue"
)

// Snapshot is the observable pipeline state: queue-resident counts from the
// queue, historical counts from the orders table.
type Snapshot struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Service aggregates read-only pipeline state and owns the system reset.
type Service struct {
	jobs        *queue.Queue
	orderStore  *orders.Store
	catalog     *catalog.Store
	idempotency *idempotency.Store
}

// NewService wires the aggregation sources.
func NewService(jobs *queue.Queue, orderStore *orders.Store, catalogStore *catalog.Store, idempStore *idempotency.Store) *Service {
	return &Service{
		jobs:        jobs,
		orderStore:  orderStore,
		catalog:     catalogStore,
		idempotency: idempStore,
	}
}

// Get returns the current snapshot. Counts are only read-consistent with the
// engine's writes, not exact.
func (s *Service) Get(ctx context.Context) (Snapshot, error) {
	counts, err := s.jobs.Counts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("queue counts: %w", err)
	}
	completed, err := s.orderStore.CountByStates(ctx, []orders.State{orders.StateCompleted})
	if err != nil {
		return Snapshot{}, fmt.Errorf("count completed: %w", err)
	}
	failed, err := s.orderStore.CountByStates(ctx, []orders.State{orders.StatePaymentFailed, orders.StateCancelled})
	if err != nil {
		return Snapshot{}, fmt.Errorf("count failed: %w", err)
	}
	return Snapshot{
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Delayed:   counts.Delayed,
		Completed: completed,
		Failed:    failed,
	}, nil
}

// Reset clears the queue and order history, drops idempotency records, and
// restores catalog stock to its baseline.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.jobs.Purge(ctx); err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	if err := s.orderStore.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}
	if err := s.idempotency.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear idempotency records: %w", err)
	}
	if err := s.catalog.ResetBaseline(ctx); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	log.Printf("[metrics] system state reset")
	return nil
}
