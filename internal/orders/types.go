package orders

import "time"

// Item is a single order line. The unit price is captured from the catalog at
// order-creation time and never recomputed.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unitPrice"`
}

// Order is the item stored in the orders DynamoDB table.
type Order struct {
	OrderID   string    `dynamodbav:"order_id" json:"id"` // PK
	UserID    string    `dynamodbav:"user_id" json:"userId"`
	Amount    float64   `dynamodbav:"amount" json:"amount"`
	Items     []Item    `dynamodbav:"items" json:"items"`
	State     State     `dynamodbav:"state" json:"state"`
	LastError string    `dynamodbav:"last_error,omitempty" json:"lastError,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updatedAt"`
	// Version is bumped on every state mutation. It is reserved for optimistic
	// locking by writers outside the workflow engine; the engine itself
	// serializes writes per order through expected-state conditional updates,
	// so nothing compares it today.
	Version int `dynamodbav:"version" json:"version"`
}
