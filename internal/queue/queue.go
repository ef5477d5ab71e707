package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
)

// DefaultMaxAttempts is the per-job delivery budget.
const DefaultMaxAttempts = 5

// baseDelaySeconds seeds the exponential backoff: 1, 2, 4, 8, 16.
const baseDelaySeconds = 1

// Queue is the workflow job queue: SQS carries deliveries, the jobs table
// keeps per-job bookkeeping (attempt counter, status, dead letters).
type Queue struct {
	sqsClient   awsx.SQSAPI
	dynamo      awsx.DynamoDBAPI
	queueURL    string
	jobsTable   string
	maxAttempts int
	nowFunc     func() time.Time
}

// New returns a Queue bound to a queue URL and jobs table.
func New(sqsClient awsx.SQSAPI, dynamo awsx.DynamoDBAPI, queueURL, jobsTable string) *Queue {
	return &Queue{
		sqsClient:   sqsClient,
		dynamo:      dynamo,
		queueURL:    queueURL,
		jobsTable:   jobsTable,
		maxAttempts: DefaultMaxAttempts,
		nowFunc:     time.Now,
	}
}

// MaxAttempts returns the delivery budget per job.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

// Enqueue creates exactly one job for an order and sends its first delivery.
func (q *Queue) Enqueue(ctx context.Context, orderID string) (Job, error) {
	now := q.nowFunc().UTC()
	job := Job{
		JobID:       uuid.NewString(),
		OrderID:     orderID,
		Status:      StatusWaiting,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	if err := q.putJob(ctx, job); err != nil {
		return Job{}, err
	}
	if err := q.send(ctx, Message{JobID: job.JobID, OrderID: orderID, Attempt: 1}, 0); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Receive long-polls for one due delivery. Returns (nil, "", nil) when the
// queue had nothing to hand out.
func (q *Queue) Receive(ctx context.Context) (*Message, string, error) {
	out, err := q.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     5,
	})
	if err != nil {
		return nil, "", fmt.Errorf("receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, "", nil
	}
	raw := out.Messages[0]
	var msg Message
	if err := json.Unmarshal([]byte(*raw.Body), &msg); err != nil {
		return nil, "", fmt.Errorf("unmarshal message body: %w", err)
	}
	var receipt string
	if raw.ReceiptHandle != nil {
		receipt = *raw.ReceiptHandle
	}
	return &msg, receipt, nil
}

// DeleteMessage acknowledges a delivery. Retries are explicit re-sends, so
// every received message is deleted once its attempt has been dispositioned.
func (q *Queue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := q.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// MarkActive records that delivery attempt of the job is executing.
func (q *Queue) MarkActive(ctx context.Context, jobID string, attempt int) error {
	return q.updateJob(ctx, jobID, StatusActive, attempt, "")
}

// Complete discards the job record; completed (and terminally consumed) jobs
// are not retained.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.dynamo.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &q.jobsTable,
		Key: map[string]dyntypes.AttributeValue{
			"job_id": &dyntypes.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

// Retry reschedules a failed delivery. Under the attempt budget the job goes
// back out as a delayed message with exponential backoff (2^(k-1) seconds
// after attempt k); once the budget is exhausted the job is retained as a dead
// letter and never redelivered. Returns whether another attempt was scheduled.
func (q *Queue) Retry(ctx context.Context, msg Message, reason string) (bool, error) {
	if msg.Attempt >= q.maxAttempts {
		if err := q.updateJob(ctx, msg.JobID, StatusFailed, msg.Attempt, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := q.updateJob(ctx, msg.JobID, StatusDelayed, msg.Attempt, reason); err != nil {
		return false, err
	}

	delay := int32(baseDelaySeconds << (msg.Attempt - 1))
	next := Message{JobID: msg.JobID, OrderID: msg.OrderID, Attempt: msg.Attempt + 1}
	if err := q.send(ctx, next, delay); err != nil {
		return false, err
	}
	return true, nil
}

// ListByStatus returns job records in the given status, most recently updated
// first.
func (q *Queue) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	all, err := q.scanJobs(ctx)
	if err != nil {
		return nil, err
	}
	var out []Job
	for _, j := range all {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Counts reads queue-resident totals from SQS queue attributes.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	out, err := q.sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: &q.queueURL,
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return Counts{}, fmt.Errorf("get queue attributes: %w", err)
	}
	atoi := func(name sqstypes.QueueAttributeName) int {
		n, _ := strconv.Atoi(out.Attributes[string(name)])
		return n
	}
	return Counts{
		Waiting: atoi(sqstypes.QueueAttributeNameApproximateNumberOfMessages),
		Active:  atoi(sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		Delayed: atoi(sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

// Purge drops every queued delivery and every job record. Used by the system
// reset only.
func (q *Queue) Purge(ctx context.Context) error {
	if _, err := q.sqsClient.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: &q.queueURL}); err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	jobs, err := q.scanJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := q.Complete(ctx, j.JobID); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) send(ctx context.Context, msg Message, delaySeconds int32) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	bodyStr := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:     &q.queueURL,
		MessageBody:  &bodyStr,
		DelaySeconds: delaySeconds,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"order_id": {DataType: awsString("String"), StringValue: &msg.OrderID},
			"job_id":   {DataType: awsString("String"), StringValue: &msg.JobID},
		},
	}
	if _, err := q.sqsClient.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (q *Queue) putJob(ctx context.Context, job Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.dynamo.PutItem(ctx, &dyn.PutItemInput{
		TableName: &q.jobsTable,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

func (q *Queue) updateJob(ctx context.Context, jobID string, status Status, attempts int, reason string) error {
	now := q.nowFunc().UTC()
	_, err := q.dynamo.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &q.jobsTable,
		Key: map[string]dyntypes.AttributeValue{
			"job_id": &dyntypes.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:         awsString("SET #s = :s, attempts_made = :a, last_failure_reason = :r, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]dyntypes.AttributeValue{
			":s":  &dyntypes.AttributeValueMemberS{Value: string(status)},
			":a":  &dyntypes.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":r":  &dyntypes.AttributeValueMemberS{Value: reason},
			":ua": &dyntypes.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

func (q *Queue) scanJobs(ctx context.Context) ([]Job, error) {
	var out []Job
	var startKey map[string]dyntypes.AttributeValue
	for {
		resp, err := q.dynamo.Scan(ctx, &dyn.ScanInput{
			TableName:         &q.jobsTable,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan jobs: %w", err)
		}
		for _, item := range resp.Items {
			var j Job
			if err := attributevalue.UnmarshalMap(item, &j); err != nil {
				return nil, fmt.Errorf("unmarshal job: %w", err)
			}
			out = append(out, j)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return out, nil
}

func awsString(s string) *string { return &s }
