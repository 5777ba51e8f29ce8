package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
	"github.com/ZanzyTHEbar/core-view/internal/resilience"
)

var errRedisDisabled = errors.New("redis is disabled")

// pingAttempts is how often the initial connection is tried before giving up
const pingAttempts = 3

// RedisConfig locates the shared Redis instance. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient wraps the Redis client with health checks and graceful degradation
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
	logger  *monitoring.Logger
}

// DisabledRedis returns a client that always reports Redis as unavailable.
func DisabledRedis() *RedisClient {
	return &RedisClient{}
}

// NewRedisClient connects to Redis. A configured but unreachable server is
// reported as an error alongside a disabled client, so callers can keep
// serving from the in-memory limiter.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *monitoring.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = monitoring.NopLogger()
	}
	if cfg.Addr == "" {
		logger.Warn("Redis address not configured, rate limiting will use in-memory fallback")
		return &RedisClient{logger: logger}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := resilience.RetryWithBackoff(pingCtx, pingAttempts, 250*time.Millisecond, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		logger.Error("Redis ping failed, falling back to in-memory rate limiting", "addr", cfg.Addr, "error", err)
		return &RedisClient{addr: cfg.Addr, logger: logger}, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis client connected", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisClient{client: client, enabled: true, addr: cfg.Addr, logger: logger}, nil
}

// Client returns the underlying Redis client, nil when disabled
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// IsEnabled returns whether Redis is connected
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.enabled
}

// HealthCheck pings Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return errRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.IsEnabled() && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// PoolStats returns Redis connection pool statistics
func (r *RedisClient) PoolStats() map[string]any {
	if !r.IsEnabled() {
		return map[string]any{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]any{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
