package idempotency

import "time"

// Record is the shape persisted in the idempotency DynamoDB table. A record is
// created locked; once the guarded handler's response is durably cached the
// record unlocks and is replayed to every later request with the same key.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Method         string    `dynamodbav:"method"`
	Path           string    `dynamodbav:"path"`
	RequestBody    string    `dynamodbav:"request_body,omitempty"`
	Locked         bool      `dynamodbav:"locked"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // small responses only; else use S3 pointer
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
}
