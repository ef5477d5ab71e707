package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-saga/internal/awsx"
)

var (
	// ErrOutOfStock reports that a reservation could not be satisfied. It is a
	// terminal business outcome for the order, never retried.
	ErrOutOfStock = errors.New("out of stock")

	// ErrUnknownProduct reports a catalog lookup miss at order creation.
	ErrUnknownProduct = errors.New("unknown product")
)

// Store encapsulates operations on the products table.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
}

// NewStore creates a new catalog Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches a product. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetMany resolves each product id, failing with ErrUnknownProduct on the
// first miss. Used for price lookup at order creation.
func (s *Store) GetMany(ctx context.Context, productIDs []string) (map[string]Product, error) {
	out := make(map[string]Product, len(productIDs))
	for _, id := range productIDs {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
		}
		out[id] = *p
	}
	return out, nil
}

// List returns all products, name-sorted for stable output.
func (s *Store) List(ctx context.Context) ([]Product, error) {
	var out []Product
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		for _, item := range resp.Items {
			var p Product
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return nil, fmt.Errorf("unmarshal product: %w", err)
			}
			out = append(out, p)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReserveStock atomically verifies and decrements stock for every reservation
// in a single TransactWriteItems call. The per-product condition stock >= :q
// is the sole authority over stock; the workflow's earlier pre-flight read is
// advisory only. A failed condition rolls back the whole transaction and
// surfaces as ErrOutOfStock.
func (s *Store) ReserveStock(ctx context.Context, reservations []Reservation) error {
	if len(reservations) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(reservations))
	for _, r := range reservations {
		q := strconv.Itoa(r.Quantity)
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"product_id": &types.AttributeValueMemberS{Value: r.ProductID},
				},
				UpdateExpression:    awsString("SET stock = stock - :q"),
				ConditionExpression: awsString("stock >= :q"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":q": &types.AttributeValueMemberN{Value: q},
				},
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		// only a failed stock condition is the business outcome; conflict,
		// throttling and validation cancellations stay transient errors
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for _, reason := range tce.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return ErrOutOfStock
				}
			}
		}
		return fmt.Errorf("reserve stock transact: %w", err)
	}
	return nil
}

// ResetBaseline rewrites the seed catalog, restoring stock to its configured
// baseline values.
func (s *Store) ResetBaseline(ctx context.Context) error {
	for _, p := range Baseline() {
		item, err := attributevalue.MarshalMap(p)
		if err != nil {
			return fmt.Errorf("marshal product: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName: &s.tableName,
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ProductID, err)
		}
	}
	return nil
}

// SeedIfEmpty writes the baseline catalog when the table has no products yet.
func (s *Store) SeedIfEmpty(ctx context.Context) error {
	existing, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return s.ResetBaseline(ctx)
}

func awsString(s string) *string { return &s }
