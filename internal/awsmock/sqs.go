package awsmock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const visibilityTimeout = 30 * time.Second

type sqsMessage struct {
	id            string
	body          string
	delaySeconds  int32
	visibleAt     time.Time
	inflightUntil time.Time
	receipt       string
	deleted       bool
}

// SQS is an in-memory queue double. Delays are tracked against a manual
// clock so tests can advance time instead of sleeping.
type SQS struct {
	mu       sync.Mutex
	now      time.Time
	seq      int
	messages []*sqsMessage
	Purges   int
}

// NewSQS returns an empty queue with its clock at the current time.
func NewSQS() *SQS {
	return &SQS{now: time.Now()}
}

// Advance moves the queue clock forward, releasing delayed messages whose
// delay has elapsed.
func (m *SQS) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// SentDelays returns the DelaySeconds of every SendMessage call in order.
func (m *SQS) SentDelays() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int32, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg.delaySeconds)
	}
	return out
}

// SendMessage enqueues a message, honoring DelaySeconds.
func (m *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	msg := &sqsMessage{
		id:           fmt.Sprintf("msg-%d", m.seq),
		body:         *params.MessageBody,
		delaySeconds: params.DelaySeconds,
		visibleAt:    m.now.Add(time.Duration(params.DelaySeconds) * time.Second),
	}
	m.messages = append(m.messages, msg)
	id := msg.id
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// ReceiveMessage hands out at most one due message. It never blocks; an
// empty queue returns an empty output immediately.
func (m *SQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages {
		if msg.deleted || m.now.Before(msg.visibleAt) || m.now.Before(msg.inflightUntil) {
			continue
		}
		msg.inflightUntil = m.now.Add(visibilityTimeout)
		m.seq++
		msg.receipt = fmt.Sprintf("receipt-%d", m.seq)

		body, id, receipt := msg.body, msg.id, msg.receipt
		return &sqs.ReceiveMessageOutput{
			Messages: []sqstypes.Message{{
				MessageId:     &id,
				Body:          &body,
				ReceiptHandle: &receipt,
			}},
		}, nil
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

// DeleteMessage acknowledges a delivery by receipt handle.
func (m *SQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages {
		if !msg.deleted && msg.receipt == *params.ReceiptHandle {
			msg.deleted = true
			break
		}
	}
	return &sqs.DeleteMessageOutput{}, nil
}

// GetQueueAttributes reports the approximate counts the real service exposes:
// visible, in flight, and delayed.
func (m *SQS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var visible, inflight, delayed int
	for _, msg := range m.messages {
		switch {
		case msg.deleted:
		case m.now.Before(msg.visibleAt):
			delayed++
		case m.now.Before(msg.inflightUntil):
			inflight++
		default:
			visible++
		}
	}
	return &sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameApproximateNumberOfMessages):           strconv.Itoa(visible),
			string(sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible): strconv.Itoa(inflight),
			string(sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed):    strconv.Itoa(delayed),
		},
	}, nil
}

// PurgeQueue drops every message.
func (m *SQS) PurgeQueue(ctx context.Context, params *sqs.PurgeQueueInput, optFns ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = nil
	m.Purges++
	return &sqs.PurgeQueueOutput{}, nil
}
