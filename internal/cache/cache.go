package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a size-bounded LRU whose entries expire after a fixed TTL.
// It is safe for concurrent use.
type Cache[V any] struct {
	name    string
	lru     *expirable.LRU[string, V]
	ttl     time.Duration
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

// New creates a cache holding at most size entries for ttl each.
// metrics and logger may be nil.
func New[V any](name string, size int, ttl time.Duration, metrics *monitoring.Metrics, logger *monitoring.Logger) *Cache[V] {
	if size <= 0 {
		size = 1
	}
	return &Cache[V]{
		name:    name,
		lru:     expirable.NewLRU[string, V](size, nil, ttl),
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.metrics.IncrementCacheHit(c.name)
	} else {
		c.metrics.IncrementCacheMiss(c.name)
	}
	if c.logger != nil {
		c.logger.CacheLogger("get", key, ok, c.lru.Len())
	}
	return v, ok
}

// Set stores an item, evicting the least recently used entry when full
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Purge removes all items from the cache
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live items
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]any {
	return map[string]any{
		"name":        c.name,
		"items":       c.lru.Len(),
		"ttl_seconds": c.ttl.Seconds(),
	}
}

type cachedResponse struct {
	contentType string
	body        []byte
}

// ResponseCache caches successful GET responses for read-only routes
type ResponseCache struct {
	entries  *Cache[cachedResponse]
	prefixes []string
}

// NewResponseCache caches GET responses whose path starts with one of prefixes
func NewResponseCache(size int, ttl time.Duration, metrics *monitoring.Metrics, logger *monitoring.Logger, prefixes ...string) *ResponseCache {
	return &ResponseCache{
		entries:  New[cachedResponse]("response", size, ttl, metrics, logger),
		prefixes: prefixes,
	}
}

func (rc *ResponseCache) cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, p := range rc.prefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}

func responseKey(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.URL.RequestURI()))
	return hex.EncodeToString(sum[:])
}

// Middleware serves cached bodies and captures fresh 200 responses
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !rc.cacheable(ctx.Request) {
			ctx.Next()
			return
		}

		key := responseKey(ctx.Request)
		if cached, found := rc.entries.Get(key); found {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, cached.contentType, cached.body)
			ctx.Abort()
			return
		}

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Header("X-Cache", "MISS")
		ctx.Next()

		if wrapper.Status() == http.StatusOK {
			rc.entries.Set(key, cachedResponse{
				contentType: wrapper.Header().Get("Content-Type"),
				body:        bytes.Clone(wrapper.body.Bytes()),
			})
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
