package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"pdfchat-go/pkg/log"
	"pdfchat-go/pkg/metrics"
)

// Cache stores vectors by key. A miss is reported by ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// cachedClient 包装任意 Client：合并索引每次重建都会重新向量化全部分块，
// 相同文本直接命中缓存。
type cachedClient struct {
	inner   Client
	cache   Cache
	metrics *metrics.Metrics
}

// WithCache decorates inner with a read-through cache. Cache failures are logged and
// fall through to the inner client; they never fail an embedding call.
func WithCache(inner Client, cache Cache, m *metrics.Metrics) Client {
	return &cachedClient{inner: inner, cache: cache, metrics: m}
}

func (c *cachedClient) Dimension() int    { return c.inner.Dimension() }
func (c *cachedClient) ModelName() string { return c.inner.ModelName() }

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.ModelName(), c.inner.Dimension(), text)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败, 回退到实时计算: %v", err)
	} else if ok {
		c.metrics.EmbeddingCacheHit()
		return vec, nil
	}
	c.metrics.EmbeddingCacheMiss()

	vec, err = c.inner.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
	}
	return vec, nil
}

func cacheKey(model string, dim int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%d:%s", model, dim, hex.EncodeToString(sum[:]))
}

// MemoryCache is a process-local cache without eviction; the corpus is a handful of
// documents per process lifetime.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.entries[key]
	return vec, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = vec
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisCache stores vectors as little-endian float32 blobs with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a RedisCache on top of an existing client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached embedding: %w", err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := r.rdb.Set(ctx, key, encodeVector(vec), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached embedding: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupted cached embedding: %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
