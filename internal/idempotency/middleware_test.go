package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func guardedRouter(store *Store, calls *int) *gin.Engine {
	r := gin.New()
	r.POST("/api/orders", Middleware(store), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusCreated, gin.H{"order": gin.H{"id": uuid.NewString()}})
	})
	return r
}

func post(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareReplaysCachedResponse(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	r := guardedRouter(store, &calls)

	first := post(r, "key-1")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)

	second := post(r, "key-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "replay must be byte-identical")
	assert.Equal(t, 1, calls, "handler must not run again for a cached key")
}

func TestMiddlewareConflictWhileLocked(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	r := guardedRouter(store, &calls)

	// the first request is still in flight: its record exists and is locked
	created, err := store.Begin(context.Background(), "key-1", "POST", "/api/orders", "{}")
	require.NoError(t, err)
	require.True(t, created)

	w := post(r, "key-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}

func TestMiddlewareDistinctKeysRunIndependently(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	r := guardedRouter(store, &calls)

	first := post(r, "key-1")
	second := post(r, "key-2")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.NotEqual(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 2, calls)
}

func TestMiddlewareBypassWithoutKey(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	r := guardedRouter(store, &calls)

	post(r, "")
	post(r, "")
	assert.Equal(t, 2, calls, "unguarded requests always reach the handler")
}
