package awsmock

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

// CloudWatch records every PutMetricData call for assertions.
type CloudWatch struct {
	mu     sync.Mutex
	Inputs []*cloudwatch.PutMetricDataInput
}

// NewCloudWatch returns an empty recorder.
func NewCloudWatch() *CloudWatch {
	return &CloudWatch{}
}

// PutMetricData records the call.
func (m *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inputs = append(m.Inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// MetricCount sums the recorded values for a metric name.
func (m *CloudWatch) MetricCount(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, in := range m.Inputs {
		for _, d := range in.MetricData {
			if d.MetricName != nil && *d.MetricName == name && d.Value != nil {
				total += *d.Value
			}
		}
	}
	return total
}
