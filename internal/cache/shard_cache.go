// Package cache provides the sharded TTL result cache used to memoize
// capability invocations, with an embedding index for similarity lookups.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"gonum.org/v1/gonum/floats"
)

// entry is one cached value with its own expiry, which may be earlier than
// the shard-level TTL.
type entry struct {
	value     interface{}
	embedding []float64
	expiresAt time.Time
}

// shard is one independently locked slice of the keyspace.
type shard struct {
	mu    sync.RWMutex
	items *lru.LRU[string, entry]
}

// ShardedCache spreads keys across N shards by fnv-32a hash so concurrent
// capability invocations rarely contend on the same lock. Each shard is a
// size-bounded LRU with TTL expiry; per-entry TTLs shorter than the shard
// TTL are honored by a lazy expiry check on read.
type ShardedCache struct {
	shards     []*shard
	defaultTTL time.Duration
	logger     Logger
}

// Option configures a ShardedCache.
type Option func(*config)

type config struct {
	shardCount  int
	maxPerShard int
	defaultTTL  time.Duration
	logger      Logger
}

// WithShardCount sets the number of shards. Values below 1 are ignored.
func WithShardCount(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.shardCount = n
		}
	}
}

// WithMaxEntriesPerShard bounds each shard's LRU size.
func WithMaxEntriesPerShard(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.maxPerShard = n
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a ShardedCache with the given default TTL.
func New(defaultTTL time.Duration, opts ...Option) *ShardedCache {
	cfg := &config{
		shardCount:  8,
		maxPerShard: 1024,
		defaultTTL:  defaultTTL,
		logger:      NewStdLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	shards := make([]*shard, cfg.shardCount)
	for i := range shards {
		shards[i] = &shard{
			// Shard-level TTL uses the default; shorter per-entry TTLs are
			// enforced lazily via entry.expiresAt.
			items: lru.NewLRU[string, entry](cfg.maxPerShard, nil, cfg.defaultTTL),
		}
	}
	return &ShardedCache{shards: shards, defaultTTL: cfg.defaultTTL, logger: cfg.logger}
}

func (c *ShardedCache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get retrieves a cached value. A miss or an expired entry is reported as a
// not-found error so callers can distinguish absence from a cached nil.
func (c *ShardedCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, errbuilder.GenericErr("context done", err)
	}

	s := c.shardFor(key)
	s.mu.RLock()
	e, found := s.items.Get(key)
	s.mu.RUnlock()

	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.logger.Info("cache item expired", "key", key)
		s.mu.Lock()
		s.items.Remove(key)
		s.mu.Unlock()
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return e.value, nil
}

// Set stores a value with the given TTL; ttl <= 0 falls back to the default.
// Writes are last-writer-wins per key.
func (c *ShardedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.put(ctx, key, value, nil, ttl)
}

// SetWithEmbedding stores a value together with an embedding vector so it can
// be found later through FindSimilar.
func (c *ShardedCache) SetWithEmbedding(ctx context.Context, key string, value interface{}, embedding []float64, ttl time.Duration) error {
	if len(embedding) == 0 {
		return errbuilder.GenericErr("embedding must not be empty", nil)
	}
	stored := make([]float64, len(embedding))
	copy(stored, embedding)
	return c.put(ctx, key, value, stored, ttl)
}

func (c *ShardedCache) put(ctx context.Context, key string, value interface{}, embedding []float64, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errbuilder.GenericErr("context done", err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	s := c.shardFor(key)
	s.mu.Lock()
	s.items.Add(key, entry{
		value:     value,
		embedding: embedding,
		expiresAt: time.Now().Add(ttl),
	})
	s.mu.Unlock()

	c.logger.Info("cache item set", "key", key, "ttl", ttl.String())
	return nil
}

// Invalidate removes a key. Removing an absent key is not an error.
func (c *ShardedCache) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errbuilder.GenericErr("context done", err)
	}
	s := c.shardFor(key)
	s.mu.Lock()
	s.items.Remove(key)
	s.mu.Unlock()
	return nil
}

// FindSimilar scans every shard's embedded entries and returns the value
// whose embedding has the highest cosine similarity to the query, provided
// it reaches the threshold. Below-threshold best matches are a miss.
func (c *ShardedCache) FindSimilar(ctx context.Context, embedding []float64, threshold float64) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, errbuilder.GenericErr("context done", err)
	}
	if len(embedding) == 0 {
		return nil, errbuilder.GenericErr("query embedding must not be empty", nil)
	}

	var best interface{}
	bestScore := -1.0
	now := time.Now()

	for _, s := range c.shards {
		s.mu.RLock()
		for _, key := range s.items.Keys() {
			e, ok := s.items.Peek(key)
			if !ok || len(e.embedding) == 0 {
				continue
			}
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				continue
			}
			score := cosineSimilarity(embedding, e.embedding)
			if score > bestScore {
				bestScore = score
				best = e.value
			}
		}
		s.mu.RUnlock()
	}

	if best == nil || bestScore < threshold {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("no similar cache item", nil))
	}
	c.logger.Info("similar cache item found", "score", bestScore)
	return best, nil
}

// cosineSimilarity returns dot(a,b)/(|a||b|), zero for mismatched or
// zero-norm vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
