package metrics

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-order-saga/internal/awsmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOutcomeMapsStates(t *testing.T) {
	ctx := context.Background()
	fakeCW := awsmock.NewCloudWatch()
	p := NewPublisher(fakeCW)

	p.PublishOutcome(ctx, "COMPLETED")
	p.PublishOutcome(ctx, "COMPLETED")
	p.PublishOutcome(ctx, "CANCELLED")
	p.PublishOutcome(ctx, "PAYMENT_FAILED")

	assert.Equal(t, 2.0, fakeCW.MetricCount("OrdersCompleted"))
	assert.Equal(t, 1.0, fakeCW.MetricCount("OrdersCancelled"))
	assert.Equal(t, 1.0, fakeCW.MetricCount("OrdersPaymentFailed"))

	require.NotEmpty(t, fakeCW.Inputs)
	assert.Equal(t, "OrderSaga", *fakeCW.Inputs[0].Namespace)
}

func TestPublishOutcomeNilSafe(t *testing.T) {
	var p *Publisher
	p.PublishOutcome(context.Background(), "COMPLETED")

	NewPublisher(nil).PublishOutcome(context.Background(), "COMPLETED")
}
