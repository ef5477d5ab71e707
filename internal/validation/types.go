package validation

// RequestItem is a single order line as submitted by the client. Prices come
// from the catalog at creation time, never from the client.
type RequestItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"` // must be >= 1
}

// CreateOrderRequest is the payload for POST /api/orders
type CreateOrderRequest struct {
	UserID string        `json:"userId" validate:"required"`
	Items  []RequestItem `json:"items" validate:"required,min=1,dive"` // at least one item
}
