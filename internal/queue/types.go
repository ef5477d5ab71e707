package queue

import "time"

// Status of a job record in the jobs table. Completed and terminally consumed
// jobs are discarded, so only queue-resident and dead-letter statuses persist.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusDelayed Status = "delayed"
	StatusFailed  Status = "failed" // attempts exhausted, retained for inspection
)

// Job is the bookkeeping record for one workflow job. SQS cannot enumerate
// in-flight messages, so inspection reads come from this table while counts
// come from the queue itself.
type Job struct {
	JobID             string    `dynamodbav:"job_id" json:"jobId"` // PK
	OrderID           string    `dynamodbav:"order_id" json:"orderId"`
	Status            Status    `dynamodbav:"status" json:"status"`
	AttemptsMade      int       `dynamodbav:"attempts_made" json:"attemptsMade"`
	MaxAttempts       int       `dynamodbav:"max_attempts" json:"maxAttempts"`
	LastFailureReason string    `dynamodbav:"last_failure_reason,omitempty" json:"failedReason,omitempty"`
	EnqueuedAt        time.Time `dynamodbav:"enqueued_at" json:"enqueuedAt"`
	UpdatedAt         time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// Message is the payload carried on the queue. Attempt is the 1-based delivery
// attempt this message represents; each retry is a fresh delayed message under
// the same job id.
type Message struct {
	JobID   string `json:"job_id"`
	OrderID string `json:"order_id"`
	Attempt int    `json:"attempt"`
}

// Counts are the queue-resident totals, sourced from SQS queue attributes.
type Counts struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Delayed int `json:"delayed"`
}
