package metrics

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-order-saga/internal/awsmock"
	"github.com/imrishuroy/go-order-saga/internal/catalog"
	"github.com/imrishuroy/go-order-saga/internal/idempotency"
	"github.com/imrishuroy/go-order-saga/internal/orders"
	"github.com/imrishuroy/go-order-saga/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deps struct {
	svc     *Service
	orders  *orders.Store
	catalog *catalog.Store
	idemp   *idempotency.Store
	jobs    *queue.Queue
	sqs     *awsmock.SQS
}

func newDeps(t *testing.T) *deps {
	t.Helper()

	db := awsmock.NewDynamoDB()
	db.CreateTable("orders", "order_id")
	db.CreateTable("products", "product_id")
	db.CreateTable("idempotency", "idempotency_key")
	db.CreateTable("jobs", "job_id")
	fakeSQS := awsmock.NewSQS()

	orderStore := orders.NewStore(db, "orders")
	catalogStore := catalog.NewStore(db, "products")
	idempStore := idempotency.NewStore(db, "idempotency")
	jobs := queue.New(fakeSQS, db, "https://sqs.test/orders", "jobs")
	require.NoError(t, catalogStore.ResetBaseline(context.Background()))

	return &deps{
		svc:     NewService(jobs, orderStore, catalogStore, idempStore),
		orders:  orderStore,
		catalog: catalogStore,
		idemp:   idempStore,
		jobs:    jobs,
		sqs:     fakeSQS,
	}
}

func TestSnapshotAggregatesQueueAndHistory(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	require.NoError(t, d.orders.Create(ctx, orders.Order{OrderID: "o1", State: orders.StateCompleted}))
	require.NoError(t, d.orders.Create(ctx, orders.Order{OrderID: "o2", State: orders.StateCompleted}))
	require.NoError(t, d.orders.Create(ctx, orders.Order{OrderID: "o3", State: orders.StatePaymentFailed}))
	require.NoError(t, d.orders.Create(ctx, orders.Order{OrderID: "o4", State: orders.StateCancelled}))

	_, err := d.jobs.Enqueue(ctx, "o5")
	require.NoError(t, err)

	snap, err := d.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Waiting: 1, Completed: 2, Failed: 2}, snap)
}

func TestResetRestoresCleanSlate(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t)

	require.NoError(t, d.orders.Create(ctx, orders.Order{OrderID: "o1", State: orders.StateCompleted}))
	_, err := d.jobs.Enqueue(ctx, "o1")
	require.NoError(t, err)
	created, err := d.idemp.Begin(ctx, "key-1", "POST", "/api/orders", "{}")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, d.catalog.ReserveStock(ctx, []catalog.Reservation{{ProductID: "prod-laptop", Quantity: 40}}))

	require.NoError(t, d.svc.Reset(ctx))

	snap, err := d.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, snap, "all counters return to zero")

	list, err := d.orders.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	rec, err := d.idemp.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "reset releases idempotency keys")

	p, err := d.catalog.Get(ctx, "prod-laptop")
	require.NoError(t, err)
	assert.Equal(t, 100, p.Stock, "stock returns to its baseline")

	assert.Equal(t, 1, d.sqs.Purges)
}
