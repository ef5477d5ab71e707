package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
)

// ErrStateConflict indicates a conditional state update lost against the
// currently persisted state. It wraps a failed expected-state write and is a
// consistency fault, not a retriable business outcome.
var ErrStateConflict = errors.New("order state conflict: persisted state differs from expected")

// Store encapsulates operations on the orders table.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. The caller assigns OrderID; state must be
// CREATED and version starts at 1.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateState moves an order from expected to next, recording lastErr (empty
// clears it) and bumping version. The write is conditional on the persisted
// state still being expected; a lost race surfaces as ErrStateConflict.
//
// Legality of expected -> next is the caller's job (see Transition); this
// method only guarantees the persisted state did not move underneath it.
func (s *Store) UpdateState(ctx context.Context, orderID string, expected, next State, lastErr string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, last_error = :le, updated_at = :ua, version = if_not_exists(version, :zero) + :one"),
		ExpressionAttributeNames: map[string]string{"#s": "state"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(next)},
			":le":       &types.AttributeValueMemberS{Value: lastErr},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":zero":     &types.AttributeValueMemberN{Value: "0"},
			":one":      &types.AttributeValueMemberN{Value: "1"},
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: order %s expected %s", ErrStateConflict, orderID, expected)
		}
		return fmt.Errorf("update order state: %w", err)
	}
	return nil
}

// SetLastError updates diagnostic metadata without changing state. Same-state
// writes bypass transition validation on purpose.
func (s *Store) SetLastError(ctx context.Context, orderID, lastErr string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET last_error = :le, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":le": &types.AttributeValueMemberS{Value: lastErr},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("update order last_error: %w", err)
	}
	return nil
}

// List returns up to limit orders, most recently created first.
func (s *Store) List(ctx context.Context, limit int) ([]Order, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListByStates returns up to limit orders whose state is in states, most
// recently updated first.
func (s *Store) ListByStates(ctx context.Context, states []State, limit int) ([]Order, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	want := map[State]bool{}
	for _, st := range states {
		want[st] = true
	}
	var out []Order
	for _, o := range all {
		if want[o.State] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByStates counts orders whose state is in states.
func (s *Store) CountByStates(ctx context.Context, states []State) (int, error) {
	matched, err := s.ListByStates(ctx, states, 0)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// DeleteAll removes every order. Used by the system reset only.
func (s *Store) DeleteAll(ctx context.Context) error {
	all, err := s.scanAll(ctx)
	if err != nil {
		return err
	}
	for _, o := range all {
		_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: o.OrderID},
			},
		})
		if err != nil {
			return fmt.Errorf("delete order %s: %w", o.OrderID, err)
		}
	}
	return nil
}

func (s *Store) scanAll(ctx context.Context) ([]Order, error) {
	var out []Order
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		for _, item := range resp.Items {
			var o Order
			if err := attributevalue.UnmarshalMap(item, &o); err != nil {
				return nil, fmt.Errorf("unmarshal order: %w", err)
			}
			out = append(out, o)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return out, nil
}

func awsString(s string) *string { return &s }
