// Package ratelimit limits how often a client may hit the credential endpoints.
// Counters live in Redis so every API instance shares one budget per client.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/auth"
)

// Counter increments the request count for key within a window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter counts with INCR and refreshes the TTL in the same pipeline.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an existing client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	if client == nil {
		panic("ratelimit: nil redis client")
	}
	return &RedisCounter{client: client}
}

// Incr increments key and sets its expiry to window.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit pipeline: %w", err)
	}
	return incr.Val(), nil
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperror.NewConfigError("failed to connect to Redis", err)
	}
	return client, nil
}

// clientIP prefers RemoteAddr, which chi's RealIP middleware has already rewritten.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects a client with 429 once it exceeds max requests within window.
// scope separates budgets, e.g. "login" and "register".
// When the counter is unavailable the request is let through and the failure logged.
func Middleware(counter Counter, scope string, max int, window time.Duration) func(http.Handler) http.Handler {
	if max <= 0 {
		panic("ratelimit: max must be positive")
	}
	if window <= 0 {
		panic("ratelimit: window must be positive")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + scope + ":" + clientIP(r)

			count, err := counter.Incr(r.Context(), key, window)
			if err != nil {
				auth.LoggerFromContext(r.Context()).WithError(err).Error("Rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(max) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(max) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				auth.WriteError(w, r, apperror.NewRateLimitedError("Too many requests. Try again later.", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
