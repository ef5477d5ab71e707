package idempotency

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-order-saga/internal/awsmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "idempotency-test"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "idempotency_key")
	return NewStore(db, testTable)
}

func TestBeginOwnsKeyOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Begin(ctx, "key-1", "POST", "/api/orders", `{"userId":"u1"}`)
	require.NoError(t, err)
	assert.True(t, created)

	// second request for the same key does not own it
	created, err = s.Begin(ctx, "key-1", "POST", "/api/orders", `{"userId":"u1"}`)
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Locked)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/api/orders", rec.Path)
}

func TestCompleteUnlocksAndCaches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Begin(ctx, "key-1", "POST", "/api/orders", "{}")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.Complete(ctx, "key-1", 201, `{"order":{"id":"o1"}}`))

	rec, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Locked)
	assert.Equal(t, 201, rec.ResponseStatus)
	assert.Equal(t, `{"order":{"id":"o1"}}`, rec.ResponseBody)
}

func TestGetMissingKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"k1", "k2", "k3"} {
		created, err := s.Begin(ctx, key, "POST", "/api/orders", "{}")
		require.NoError(t, err)
		require.True(t, created)
	}

	require.NoError(t, s.DeleteAll(ctx))

	for _, key := range []string{"k1", "k2", "k3"} {
		rec, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, rec)
	}
}

func TestDeleteAllSpansScanPages(t *testing.T) {
	ctx := context.Background()
	db := awsmock.NewDynamoDB()
	db.CreateTable(testTable, "idempotency_key")
	db.ScanPageSize = 1
	s := NewStore(db, testTable)

	for _, key := range []string{"k1", "k2", "k3", "k4"} {
		created, err := s.Begin(ctx, key, "POST", "/api/orders", "{}")
		require.NoError(t, err)
		require.True(t, created)
	}

	require.NoError(t, s.DeleteAll(ctx))

	for _, key := range []string{"k1", "k2", "k3", "k4"} {
		rec, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, rec, "reset must walk every scan page")
	}
}
