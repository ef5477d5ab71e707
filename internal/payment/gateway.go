package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Error codes returned by the gateway.
const (
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeGatewayError      = "GATEWAY_ERROR"
)

// ChargeResult is the gateway's answer to a charge attempt. A declined charge
// is a normal result, not a Go error; errors are reserved for transport-level
// failures talking to the gateway.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
}

// Gateway is the payment collaborator contract the workflow engine depends on.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount float64) (ChargeResult, error)
}

// SimulatedGateway fails charges probabilistically with one of the known error
// codes. It stands in for a real payment provider.
type SimulatedGateway struct {
	mu          sync.Mutex
	failureRate float64
	rng         *rand.Rand
	// MaxLatency > 0 adds up to that much random latency per charge.
	MaxLatency time.Duration
}

var errorCodes = []string{ErrCodeTimeout, ErrCodeInsufficientFunds, ErrCodeGatewayError}

// NewSimulatedGateway returns a gateway failing at the given rate (0..1).
func NewSimulatedGateway(failureRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFailureRate adjusts the failure probability.
func (g *SimulatedGateway) SetFailureRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("failure rate must be between 0 and 1, got %v", rate)
	}
	g.mu.Lock()
	g.failureRate = rate
	g.mu.Unlock()
	return nil
}

// Charge simulates charging the given amount.
func (g *SimulatedGateway) Charge(ctx context.Context, orderID string, amount float64) (ChargeResult, error) {
	g.mu.Lock()
	rate := g.failureRate
	latency := time.Duration(0)
	if g.MaxLatency > 0 {
		latency = time.Duration(g.rng.Int63n(int64(g.MaxLatency)))
	}
	roll := g.rng.Float64()
	pick := g.rng.Intn(len(errorCodes))
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		}
	}

	if roll < rate {
		return ChargeResult{Success: false, ErrorCode: errorCodes[pick]}, nil
	}

	return ChargeResult{
		Success:       true,
		TransactionID: fmt.Sprintf("txn_%d_%s", time.Now().UnixMilli(), orderID),
	}, nil
}
