package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/payment"
	"github.com/imrishuroy/go-order-saga/internal/queue"
)

const outOfStockReason = "Out of stock"

// OutcomePublisher receives terminal order outcomes, best-effort.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, state orders.State)
}

// Engine drives an order from CREATED to a terminal state: payment step, then
// atomic inventory reservation, each move validated against the state machine
// and persisted before the attempt's outcome is signaled to the queue.
type Engine struct {
	orderStore   *orders.Store
	catalogStore *catalog.Store
	jobs         *queue.Queue
	gateway      payment.Gateway
	outcomes     OutcomePublisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs an engine over its collaborators. Nothing starts until
// Start is called.
func NewEngine(orderStore *orders.Store, catalogStore *catalog.Store, jobs *queue.Queue, gateway payment.Gateway) *Engine {
	return &Engine{
		orderStore:   orderStore,
		catalogStore: catalogStore,
		jobs:         jobs,
		gateway:      gateway,
	}
}

// SetOutcomePublisher wires optional outcome metrics.
func (e *Engine) SetOutcomePublisher(p OutcomePublisher) { e.outcomes = p }

// Start launches the worker pool. Each worker long-polls the queue; SQS
// visibility keeps two workers off the same delivery, and retries are only
// scheduled after the previous attempt finishes, so attempts of one job are
// strictly sequential.
func (e *Engine) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.run(ctx)
	}
	log.Printf("[worker] engine started with %d workers", workers)
}

// Stop cancels the workers and waits for in-flight attempts to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := e.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[worker] error: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// ProcessOnce receives at most one delivery and runs it to a disposition.
// Returns whether a delivery was handled. On error the message is left to
// reappear after its visibility timeout (at-least-once).
func (e *Engine) ProcessOnce(ctx context.Context) (bool, error) {
	msg, receipt, err := e.jobs.Receive(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}
	if err := e.HandleMessage(ctx, *msg); err != nil {
		return true, err
	}
	return true, e.jobs.DeleteMessage(ctx, receipt)
}

// HandleMessage executes one delivery attempt and settles it with the queue.
// It is also the Lambda SQS entry point; a nil return means the delivery is
// done (retries are explicit delayed re-sends, never SQS redrives).
func (e *Engine) HandleMessage(ctx context.Context, msg queue.Message) error {
	log.Printf("[worker] processing order=%s job=%s attempt=%d", msg.OrderID, msg.JobID, msg.Attempt)

	if err := e.jobs.MarkActive(ctx, msg.JobID, msg.Attempt); err != nil {
		return err
	}

	res := e.attempt(ctx, msg.OrderID)

	switch res.Disposition {
	case DispositionCompleted:
		if err := e.jobs.Complete(ctx, msg.JobID); err != nil {
			return err
		}
		log.Printf("[worker] order=%s completed", msg.OrderID)

	case DispositionTerminal:
		// consumed like a success: the order already carries the outcome
		if err := e.jobs.Complete(ctx, msg.JobID); err != nil {
			return err
		}
		e.publish(ctx, orders.StateCancelled)
		log.Printf("[worker] order=%s cancelled: %s", msg.OrderID, res.Reason)

	case DispositionRetriable:
		retried, err := e.jobs.Retry(ctx, msg, res.Reason)
		if err != nil {
			return err
		}
		if retried {
			log.Printf("[worker] order=%s attempt=%d failed, rescheduled: %s", msg.OrderID, msg.Attempt, res.Reason)
		} else {
			e.publish(ctx, orders.StatePaymentFailed)
			log.Printf("[worker] order=%s failed permanently after %d attempts: %s", msg.OrderID, msg.Attempt, res.Reason)
		}

	default:
		return fmt.Errorf("unknown disposition %q for order %s", res.Disposition, msg.OrderID)
	}

	return nil
}

// attempt runs the per-attempt saga. Every state it acts on is read fresh;
// durable state (order state + last_error) is written before the result is
// returned, so a crash after the write still leaves the attempt visible.
func (e *Engine) attempt(ctx context.Context, orderID string) Result {
	order, err := e.orderStore.Get(ctx, orderID)
	if err != nil {
		return retriable(fmt.Sprintf("load order: %v", err))
	}
	if order == nil {
		return retriable(fmt.Sprintf("order not found: %s", orderID))
	}

	// another path already terminated it; do not re-run payment/inventory
	if order.State == orders.StateCancelled {
		return completed()
	}

	// 1. Pre-flight stock check: advisory early exit before the payment call.
	// It never reserves anything; step 3's transaction is the authority.
	for _, it := range order.Items {
		p, err := e.catalogStore.Get(ctx, it.ProductID)
		if err != nil {
			return retriable(fmt.Sprintf("read stock: %v", err))
		}
		if p == nil || p.Stock < it.Quantity {
			return e.cancelOutOfStock(ctx, orderID)
		}
	}

	// 2. Payment. Skipped when a retry resumes past PAYMENT_SUCCESS: payment
	// is attempted at most once per successful completion.
	if order.State == orders.StateCreated || order.State == orders.StatePaymentFailed {
		if err := e.transition(ctx, orderID, orders.StatePaymentPending, ""); err != nil {
			return e.failPayment(ctx, orderID, err.Error())
		}

		charge, err := e.gateway.Charge(ctx, orderID, order.Amount)
		if err != nil {
			return e.failPayment(ctx, orderID, fmt.Sprintf("payment gateway: %v", err))
		}
		if !charge.Success {
			// every gateway code is retried today, INSUFFICIENT_FUNDS
			// included; see DESIGN.md before changing this
			return e.failPayment(ctx, orderID, "Payment failed: "+charge.ErrorCode)
		}

		if err := e.transition(ctx, orderID, orders.StatePaymentSuccess, ""); err != nil {
			return e.failPayment(ctx, orderID, err.Error())
		}
	}

	// 3. Reservation intent. Not rolled back on failure; a later cancellation
	// supersedes it.
	if err := e.transition(ctx, orderID, orders.StateInventoryReserved, ""); err != nil {
		return e.failPayment(ctx, orderID, err.Error())
	}

	// 4. Atomic check-and-decrement across all line items.
	reservations := make([]catalog.Reservation, 0, len(order.Items))
	for _, it := range order.Items {
		reservations = append(reservations, catalog.Reservation{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := e.catalogStore.ReserveStock(ctx, reservations); err != nil {
		if errors.Is(err, catalog.ErrOutOfStock) {
			return e.cancelOutOfStock(ctx, orderID)
		}
		return e.failPayment(ctx, orderID, fmt.Sprintf("reserve stock: %v", err))
	}

	// 5. Finalize.
	if err := e.transition(ctx, orderID, orders.StateCompleted, ""); err != nil {
		return e.failPayment(ctx, orderID, err.Error())
	}
	e.publish(ctx, orders.StateCompleted)
	return completed()
}

// transition moves the order to next after validating against its freshly
// persisted state. A same-state call only refreshes last_error and bypasses
// table validation: it is metadata, not a state change.
func (e *Engine) transition(ctx context.Context, orderID string, next orders.State, lastErr string) error {
	order, err := e.orderStore.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", orderID)
	}

	if order.State == next {
		if order.LastError != lastErr {
			return e.orderStore.SetLastError(ctx, orderID, lastErr)
		}
		return nil
	}

	if _, err := orders.Transition(order.State, next); err != nil {
		return err
	}
	return e.orderStore.UpdateState(ctx, orderID, order.State, next, lastErr)
}

// failPayment records a retriable attempt failure: the order moves to
// PAYMENT_FAILED (or keeps its state with last_error refreshed when that move
// is not legal) before the retriable result is signaled. Invalid transitions
// funneling through here are logic faults; they are logged loudly and still
// surface in the dead-letter set once the budget runs out.
func (e *Engine) failPayment(ctx context.Context, orderID, reason string) Result {
	order, err := e.orderStore.Get(ctx, orderID)
	if err != nil || order == nil {
		log.Printf("[worker] could not record failure for order %s: %v", orderID, err)
		return retriable(reason)
	}
	if order.State == orders.StatePaymentFailed {
		if order.LastError != reason {
			if err := e.orderStore.SetLastError(ctx, orderID, reason); err != nil {
				log.Printf("[worker] could not record failure for order %s: %v", orderID, err)
			}
		}
	} else if orders.CanTransition(order.State, orders.StatePaymentFailed) {
		if err := e.orderStore.UpdateState(ctx, orderID, order.State, orders.StatePaymentFailed, reason); err != nil {
			log.Printf("[worker] could not record failure for order %s: %v", orderID, err)
		}
	} else {
		log.Printf("[worker] order %s in state %s cannot record payment failure: %s", orderID, order.State, reason)
		if err := e.orderStore.SetLastError(ctx, orderID, reason); err != nil {
			log.Printf("[worker] could not record failure for order %s: %v", orderID, err)
		}
	}
	return retriable(reason)
}

// cancelOutOfStock settles the terminal out-of-stock outcome.
func (e *Engine) cancelOutOfStock(ctx context.Context, orderID string) Result {
	if err := e.transition(ctx, orderID, orders.StateCancelled, outOfStockReason); err != nil {
		log.Printf("[worker] could not cancel order %s: %v", orderID, err)
		return retriable(fmt.Sprintf("cancel order: %v", err))
	}
	return terminal(outOfStockReason)
}

func (e *Engine) publish(ctx context.Context, state orders.State) {
	if e.outcomes != nil {
		e.outcomes.PublishOutcome(ctx, state)
	}
}
