package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin   int           // requests per minute per client IP
	CleanupInterval time.Duration // idle in-memory limiters older than this are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:   60,
		CleanupInterval: time.Hour,
	}
}

// Rate is a number of requests allowed per period
type Rate struct {
	Limit  int
	Period time.Duration
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Backend    string
}

type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics
	logger       *monitoring.Logger

	fallbackMu sync.Mutex
	fallback   map[string]*fallbackEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter. redisClient may be disabled, in
// which case every check runs against in-memory token buckets.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics, logger *monitoring.Logger) *RateLimiter {
	if logger == nil {
		logger = monitoring.NopLogger()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		config:      config,
		metrics:     metrics,
		logger:      logger,
		fallback:    make(map[string]*fallbackEntry),
		stop:        make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.Client())
		logger.Info("Redis rate limiter initialized")
	} else {
		logger.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupLoop()
	return rl
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// AllowIP checks the per-minute limit for a client IP
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, "ratelimit:ip:"+ip, Rate{Limit: rl.config.IPLimitPerMin, Period: time.Minute})
}

// Allow checks key against r, preferring Redis and falling back to memory
// when Redis is disabled or failing.
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	if r.Limit <= 0 || r.Period <= 0 {
		return nil, fmt.Errorf("invalid rate %d per %s", r.Limit, r.Period)
	}

	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, r)
		if err == nil {
			return result, nil
		}
		rl.logger.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
	}
	return rl.allowFallback(key, r), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   r.Limit,
		Burst:  r.Limit,
		Period: r.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: max(res.RetryAfter, 0),
		Backend:    BackendRedis,
	}, nil
}

// allowFallback runs a token bucket that refills limit tokens per period
func (rl *RateLimiter) allowFallback(key string, r Rate) *Result {
	now := time.Now()
	every := r.Period / time.Duration(r.Limit)

	rl.fallbackMu.Lock()
	entry, ok := rl.fallback[key]
	if !ok {
		entry = &fallbackEntry{limiter: rate.NewLimiter(rate.Every(every), r.Limit)}
		rl.fallback[key] = entry
	}
	entry.lastSeen = now
	rl.fallbackMu.Unlock()

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)

	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(time.Duration((float64(r.Limit) - tokens) * float64(every))),
		Backend:   BackendMemory,
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) * float64(every))
	}
	return result
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle drops in-memory limiters that have not been used for a full
// cleanup interval. An idle bucket is full again, so dropping it is lossless
// once the interval exceeds the longest period in use.
func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.fallbackMu.Lock()
	defer rl.fallbackMu.Unlock()

	evicted := 0
	for key, entry := range rl.fallback {
		if now.Sub(entry.lastSeen) > rl.config.CleanupInterval {
			delete(rl.fallback, key)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("Evicted idle rate limiters", "count", evicted)
	}
	return evicted
}

// Stats returns rate limiter statistics
func (rl *RateLimiter) Stats() map[string]any {
	rl.fallbackMu.Lock()
	fallbackCount := len(rl.fallback)
	rl.fallbackMu.Unlock()

	return map[string]any{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
		"ip_limit_per_min":  rl.config.IPLimitPerMin,
		"redis_pool":        rl.redisClient.PoolStats(),
	}
}
