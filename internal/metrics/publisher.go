package metrics

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
	"github.com/imrishuroy/go-order-saga/internal/orders"
)

const metricNamespace = "OrderSaga"

// Publisher pushes order-outcome counters to CloudWatch. All publishing is
// best-effort; a metrics failure never affects the workflow.
type Publisher struct {
	client awsx.CloudWatchAPI
}

// NewPublisher returns a Publisher over a CloudWatch client.
func NewPublisher(client awsx.CloudWatchAPI) *Publisher {
	return &Publisher{client: client}
}

// PublishOutcome emits a count of 1 for the order's terminal state.
func (p *Publisher) PublishOutcome(ctx context.Context, state orders.State) {
	if p == nil || p.client == nil {
		return
	}
	name := "OrdersCompleted"
	switch state {
	case orders.StateCancelled:
		name = "OrdersCancelled"
	case orders.StatePaymentFailed:
		name = "OrdersPaymentFailed"
	}

	one := 1.0
	namespace := metricNamespace
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put metric %s: %v", name, err)
	}
}
