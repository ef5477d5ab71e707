package catalog

import (
	"context"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-saga/internal/awsmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "products-test"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "product_id")
	return NewStore(db, testTable)
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	require.NoError(t, s.ResetBaseline(context.Background()))
	return s
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SeedIfEmpty(ctx))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)

	// a second seed must not clobber live stock
	require.NoError(t, s.ReserveStock(ctx, []Reservation{{ProductID: "prod-laptop", Quantity: 10}}))
	require.NoError(t, s.SeedIfEmpty(ctx))

	p, err := s.Get(ctx, "prod-laptop")
	require.NoError(t, err)
	assert.Equal(t, 90, p.Stock)
}

func TestGetAndGetMany(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	p, err := s.Get(ctx, "prod-mouse")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Mouse", p.Name)
	assert.Equal(t, 49.99, p.Price)
	assert.Equal(t, 200, p.Stock)

	missing, err := s.Get(ctx, "prod-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	many, err := s.GetMany(ctx, []string{"prod-laptop", "prod-keyboard"})
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = s.GetMany(ctx, []string{"prod-laptop", "prod-unknown"})
	require.ErrorIs(t, err, ErrUnknownProduct)
}

func TestReserveStockDecrements(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	err := s.ReserveStock(ctx, []Reservation{
		{ProductID: "prod-laptop", Quantity: 2},
		{ProductID: "prod-headphones", Quantity: 1},
	})
	require.NoError(t, err)

	laptop, _ := s.Get(ctx, "prod-laptop")
	headphones, _ := s.Get(ctx, "prod-headphones")
	assert.Equal(t, 98, laptop.Stock)
	assert.Equal(t, 49, headphones.Stock)
}

func TestReserveStockInsufficient(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	err := s.ReserveStock(ctx, []Reservation{{ProductID: "prod-headphones", Quantity: 51}})
	require.ErrorIs(t, err, ErrOutOfStock)

	p, _ := s.Get(ctx, "prod-headphones")
	assert.Equal(t, 50, p.Stock, "failed reservation must not touch stock")
}

func TestReserveStockAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	// second line fails, so the first line must roll back too
	err := s.ReserveStock(ctx, []Reservation{
		{ProductID: "prod-laptop", Quantity: 1},
		{ProductID: "prod-headphones", Quantity: 500},
	})
	require.ErrorIs(t, err, ErrOutOfStock)

	laptop, _ := s.Get(ctx, "prod-laptop")
	assert.Equal(t, 100, laptop.Stock)
}

// cancellingDynamoDB fails every transaction with the given cancellation
// reason codes.
type cancellingDynamoDB struct {
	*awsmock.DynamoDB
	codes []string
}

func (c *cancellingDynamoDB) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	reasons := make([]types.CancellationReason, 0, len(c.codes))
	for _, code := range c.codes {
		code := code
		reasons = append(reasons, types.CancellationReason{Code: &code})
	}
	return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestReserveStockTransactionConflictIsTransient(t *testing.T) {
	ctx := context.Background()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "product_id")

	// a concurrent transaction on the same product cancels with
	// TransactionConflict; that is a transient fault, not an empty shelf
	s := NewStore(&cancellingDynamoDB{DynamoDB: db, codes: []string{"TransactionConflict"}}, testTable)

	err := s.ReserveStock(ctx, []Reservation{{ProductID: "prod-laptop", Quantity: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfStock)
}

func TestReserveStockThrottleCancellationIsTransient(t *testing.T) {
	ctx := context.Background()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "product_id")

	s := NewStore(&cancellingDynamoDB{DynamoDB: db, codes: []string{"None", "ThrottlingError"}}, testTable)

	err := s.ReserveStock(ctx, []Reservation{{ProductID: "prod-laptop", Quantity: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfStock)
}

func TestReserveStockConditionFailureIsOutOfStock(t *testing.T) {
	ctx := context.Background()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "product_id")

	s := NewStore(&cancellingDynamoDB{DynamoDB: db, codes: []string{"None", "ConditionalCheckFailed"}}, testTable)

	err := s.ReserveStock(ctx, []Reservation{{ProductID: "prod-laptop", Quantity: 1}})
	require.ErrorIs(t, err, ErrOutOfStock)
}

func TestReserveStockExactRemainder(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	require.NoError(t, s.ReserveStock(ctx, []Reservation{{ProductID: "prod-headphones", Quantity: 50}}))

	p, _ := s.Get(ctx, "prod-headphones")
	assert.Equal(t, 0, p.Stock)

	err := s.ReserveStock(ctx, []Reservation{{ProductID: "prod-headphones", Quantity: 1}})
	require.ErrorIs(t, err, ErrOutOfStock)
}

func TestResetBaselineRestoresStock(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	require.NoError(t, s.ReserveStock(ctx, []Reservation{{ProductID: "prod-mouse", Quantity: 150}}))
	require.NoError(t, s.ResetBaseline(ctx))

	for _, want := range Baseline() {
		p, err := s.Get(ctx, want.ProductID)
		require.NoError(t, err)
		assert.Equal(t, want.Stock, p.Stock)
		assert.Equal(t, want.Price, p.Price)
	}
}

func TestListSortedByName(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, []string{"Headphones", "Keyboard", "Laptop", "Mouse"},
		[]string{list[0].Name, list[1].Name, list[2].Name, list[3].Name})
}
