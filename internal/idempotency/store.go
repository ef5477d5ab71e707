package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Begin creates a locked record for key if none exists.
// Returns (created=true, nil) when this request owns the key.
// Returns (created=false, nil) when the key already exists; the caller should
// Get to decide between conflict and replay. The table's uniqueness condition
// is what settles two concurrent first requests.
func (s *Store) Begin(ctx context.Context, key, method, path, requestBody string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		IdempotencyKey: key,
		Method:         method,
		Path:           path,
		RequestBody:    requestBody,
		Locked:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return false, nil
		}
		// some transports surface the condition failure as a generic API error
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put record: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// Complete stores the handler's response and unlocks the record. From here on
// the key replays this exact status and body.
func (s *Store) Complete(ctx context.Context, key string, responseStatus int, responseBody string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET locked = :l, response_status = :rs, response_body = :rb, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":l":  &types.AttributeValueMemberBOOL{Value: false},
			":rs": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
			":rb": &types.AttributeValueMemberS{Value: responseBody},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("update record (complete): %w", err)
	}
	return nil
}

// DeleteAll removes every record. Used by the system reset only.
func (s *Store) DeleteAll(ctx context.Context) error {
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("scan records: %w", err)
		}
		for _, item := range resp.Items {
			var rec Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"idempotency_key": &types.AttributeValueMemberS{Value: rec.IdempotencyKey},
				},
			})
			if err != nil {
				return fmt.Errorf("delete record %s: %w", rec.IdempotencyKey, err)
			}
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func awsString(s string) *string { return &s }
