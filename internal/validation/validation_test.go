package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateOrderRequestValidation(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		req   CreateOrderRequest
		valid bool
	}{
		{
			name: "valid single item",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items:  []RequestItem{{ProductID: "prod-laptop", Quantity: 1}},
			},
			valid: true,
		},
		{
			name: "valid multiple items",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items: []RequestItem{
					{ProductID: "prod-laptop", Quantity: 2},
					{ProductID: "prod-mouse", Quantity: 1},
				},
			},
			valid: true,
		},
		{
			name: "missing user id",
			req: CreateOrderRequest{
				Items: []RequestItem{{ProductID: "prod-laptop", Quantity: 1}},
			},
			valid: false,
		},
		{
			name:  "no items",
			req:   CreateOrderRequest{UserID: "user-1"},
			valid: false,
		},
		{
			name:  "empty items",
			req:   CreateOrderRequest{UserID: "user-1", Items: []RequestItem{}},
			valid: false,
		},
		{
			name: "zero quantity",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items:  []RequestItem{{ProductID: "prod-laptop", Quantity: 0}},
			},
			valid: false,
		},
		{
			name: "negative quantity",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items:  []RequestItem{{ProductID: "prod-laptop", Quantity: -2}},
			},
			valid: false,
		},
		{
			name: "missing product id",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items:  []RequestItem{{Quantity: 1}},
			},
			valid: false,
		},
		{
			name: "duplicate product lines",
			req: CreateOrderRequest{
				UserID: "user-1",
				Items: []RequestItem{
					{ProductID: "prod-laptop", Quantity: 1},
					{ProductID: "prod-laptop", Quantity: 2},
				},
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
