package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsOverBudget(t *testing.T) {
	h := Middleware(&memoryCounter{}, "login", 2, time.Minute)(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:5555").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:5556").Code)

	rec := hit(h, "10.0.0.1:5557")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// A different client has its own budget.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:5555").Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h := Middleware(&memoryCounter{err: errors.New("connection refused")}, "login", 1, time.Minute)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	}
}

func TestRedisCounter(t *testing.T) {
	// Skip if no Redis connection
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping test - no Redis connection configured")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer client.Close()

	key := "ratelimit:test:" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, key)

	counter := NewRedisCounter(client)
	first, err := counter.Incr(ctx, key, time.Minute)
	require.NoError(t, err)
	second, err := counter.Incr(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
