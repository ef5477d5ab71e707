// Package awsmock holds small in-memory doubles for the AWS clients the
// service depends on. They implement just the operations and expression
// shapes the stores actually issue; they are test fixtures, not emulators.
package awsmock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB is an in-memory multi-table DynamoDB double. Register each table
// with its key attribute before use.
type DynamoDB struct {
	mu     sync.Mutex
	keys   map[string]string                              // table -> key attribute
	tables map[string]map[string]map[string]types.AttributeValue // table -> pk -> item

	// ScanPageSize > 0 makes Scan return at most that many items per page
	// with a LastEvaluatedKey, the way the real service paginates.
	ScanPageSize int
}

// NewDynamoDB returns an empty store.
func NewDynamoDB() *DynamoDB {
	return &DynamoDB{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

// CreateTable registers a table and its partition key attribute.
func (m *DynamoDB) CreateTable(name, keyAttr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[name] = keyAttr
	if m.tables[name] == nil {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
}

// Len reports how many items a table holds.
func (m *DynamoDB) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// RawItem returns the stored item for direct assertions.
func (m *DynamoDB) RawItem(table, key string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][key]
}

func (m *DynamoDB) tableFor(name *string) (map[string]map[string]types.AttributeValue, string, error) {
	if name == nil {
		return nil, "", errors.New("awsmock: missing table name")
	}
	t, ok := m.tables[*name]
	if !ok {
		return nil, "", fmt.Errorf("awsmock: unknown table %s", *name)
	}
	return t, m.keys[*name], nil
}

func keyValue(item map[string]types.AttributeValue, keyAttr string) (string, error) {
	av, ok := item[keyAttr]
	if !ok {
		return "", fmt.Errorf("awsmock: item missing key attribute %s", keyAttr)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("awsmock: key attribute %s is not a string", keyAttr)
	}
	return s.Value, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// PutItem stores an item, honoring attribute_not_exists conditions.
func (m *DynamoDB) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, keyAttr, err := m.tableFor(params.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Item, keyAttr)
	if err != nil {
		return nil, err
	}

	if params.ConditionExpression != nil {
		_, exists := table[pk]
		if !evalCondition(table[pk], exists, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	table[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

// GetItem fetches an item by key.
func (m *DynamoDB) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, keyAttr, err := m.tableFor(params.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key, keyAttr)
	if err != nil {
		return nil, err
	}
	item, ok := table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

// UpdateItem applies the SET expressions the stores use, honoring their
// conditional expressions.
func (m *DynamoDB) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, keyAttr, err := m.tableFor(params.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key, keyAttr)
	if err != nil {
		return nil, err
	}

	item, exists := table[pk]
	if params.ConditionExpression != nil {
		if !evalCondition(item, exists, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !exists {
		item = map[string]types.AttributeValue{keyAttr: params.Key[keyAttr]}
	}

	if params.UpdateExpression != nil {
		if err := applyUpdate(item, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	table[pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

// DeleteItem removes an item if present.
func (m *DynamoDB) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, keyAttr, err := m.tableFor(params.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key, keyAttr)
	if err != nil {
		return nil, err
	}
	delete(table, pk)
	return &dyn.DeleteItemOutput{}, nil
}

// Scan returns the table's items in key order, paging when ScanPageSize is
// set and resuming from ExclusiveStartKey.
func (m *DynamoDB) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, keyAttr, err := m.tableFor(params.TableName)
	if err != nil {
		return nil, err
	}

	pks := make([]string, 0, len(table))
	for pk := range table {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	start := 0
	if len(params.ExclusiveStartKey) > 0 {
		after, err := keyValue(params.ExclusiveStartKey, keyAttr)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(pks, after)
		if start < len(pks) && pks[start] == after {
			start++
		}
	}

	end := len(pks)
	if m.ScanPageSize > 0 && start+m.ScanPageSize < end {
		end = start + m.ScanPageSize
	}

	out := &dyn.ScanOutput{}
	for _, pk := range pks[start:end] {
		out.Items = append(out.Items, copyItem(table[pk]))
	}
	if end < len(pks) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			keyAttr: &types.AttributeValueMemberS{Value: pks[end-1]},
		}
	}
	return out, nil
}

// TransactWriteItems validates every condition first and applies all writes
// only when none failed, mirroring the all-or-nothing contract the catalog's
// reservation depends on.
func (m *DynamoDB) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type pending struct {
		table   map[string]map[string]types.AttributeValue
		keyAttr string
		pk      string
		update  *types.Update
		put     *types.Put
	}

	var writes []pending
	var reasons []types.CancellationReason
	failed := false

	for _, ti := range params.TransactItems {
		switch {
		case ti.Update != nil:
			table, keyAttr, err := m.tableFor(ti.Update.TableName)
			if err != nil {
				return nil, err
			}
			pk, err := keyValue(ti.Update.Key, keyAttr)
			if err != nil {
				return nil, err
			}
			item, exists := table[pk]
			reason := types.CancellationReason{Code: awsString("None")}
			if ti.Update.ConditionExpression != nil &&
				!evalCondition(item, exists, *ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues) {
				reason.Code = awsString("ConditionalCheckFailed")
				failed = true
			}
			reasons = append(reasons, reason)
			writes = append(writes, pending{table: table, keyAttr: keyAttr, pk: pk, update: ti.Update})

		case ti.Put != nil:
			table, keyAttr, err := m.tableFor(ti.Put.TableName)
			if err != nil {
				return nil, err
			}
			pk, err := keyValue(ti.Put.Item, keyAttr)
			if err != nil {
				return nil, err
			}
			_, exists := table[pk]
			reason := types.CancellationReason{Code: awsString("None")}
			if ti.Put.ConditionExpression != nil &&
				!evalCondition(table[pk], exists, *ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues) {
				reason.Code = awsString("ConditionalCheckFailed")
				failed = true
			}
			reasons = append(reasons, reason)
			writes = append(writes, pending{table: table, keyAttr: keyAttr, pk: pk, put: ti.Put})

		default:
			return nil, errors.New("awsmock: unsupported transact item")
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, w := range writes {
		if w.put != nil {
			w.table[w.pk] = copyItem(w.put.Item)
			continue
		}
		item, exists := w.table[w.pk]
		if !exists {
			item = map[string]types.AttributeValue{w.keyAttr: w.update.Key[w.keyAttr]}
		}
		if err := applyUpdate(item, *w.update.UpdateExpression, w.update.ExpressionAttributeNames, w.update.ExpressionAttributeValues); err != nil {
			return nil, err
		}
		w.table[w.pk] = item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// --- expression evaluation ------------------------------------------------

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if real, ok := names[name]; ok {
			return real
		}
	}
	return name
}

// splitClauses splits a SET expression body on commas outside parentheses.
func splitClauses(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func numVal(av types.AttributeValue) float64 {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(n.Value, 64)
	return f
}

func numAttr(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && numVal(av) == numVal(bv)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func evalCondition(item map[string]types.AttributeValue, exists bool, cond string, names map[string]string, values map[string]types.AttributeValue) bool {
	cond = strings.TrimSpace(cond)

	if strings.HasPrefix(cond, "attribute_not_exists(") {
		return !exists
	}
	if idx := strings.Index(cond, ">="); idx >= 0 {
		if !exists {
			return false
		}
		attr := resolveName(strings.TrimSpace(cond[:idx]), names)
		return numVal(item[attr]) >= numVal(values[strings.TrimSpace(cond[idx+2:])])
	}
	if idx := strings.Index(cond, "="); idx >= 0 {
		if !exists {
			return false
		}
		attr := resolveName(strings.TrimSpace(cond[:idx]), names)
		return attrEqual(item[attr], values[strings.TrimSpace(cond[idx+1:])])
	}
	return true
}

// applyUpdate supports the SET shapes the stores issue:
//
//	attr = :v
//	attr = if_not_exists(attr, :zero) + :one
//	attr = attr - :q
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	body, ok := strings.CutPrefix(strings.TrimSpace(expr), "SET ")
	if !ok {
		return fmt.Errorf("awsmock: unsupported update expression %q", expr)
	}
	for _, clause := range splitClauses(body) {
		parts := strings.SplitN(clause, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("awsmock: unsupported clause %q", clause)
		}
		target := resolveName(strings.TrimSpace(parts[0]), names)
		rhs := strings.TrimSpace(parts[1])

		switch {
		case strings.HasPrefix(rhs, ":"):
			item[target] = values[rhs]

		case strings.Contains(rhs, "if_not_exists"):
			base := 0.0
			if cur, exists := item[target]; exists {
				base = numVal(cur)
			} else if zero := values[placeholderIn(rhs, 0)]; zero != nil {
				base = numVal(zero)
			}
			inc := numVal(values[placeholderIn(rhs, 1)])
			item[target] = numAttr(base + inc)

		case strings.Contains(rhs, "-"):
			fields := strings.SplitN(rhs, "-", 2)
			src := resolveName(strings.TrimSpace(fields[0]), names)
			dec := numVal(values[strings.TrimSpace(fields[1])])
			item[target] = numAttr(numVal(item[src]) - dec)

		default:
			return fmt.Errorf("awsmock: unsupported clause %q", clause)
		}
	}
	return nil
}

// placeholderIn returns the nth ":placeholder" token in s.
func placeholderIn(s string, n int) string {
	count := -1
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		j := i + 1
		for j < len(s) && (isWordByte(s[j])) {
			j++
		}
		count++
		if count == n {
			return s[i:j]
		}
		i = j
	}
	return ""
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func awsString(s string) *string { return &s }
