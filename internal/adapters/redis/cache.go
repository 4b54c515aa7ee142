package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

const (
	keyPrefix = "layout_cache:"

	// InvalidationChannel carries identifiers whose cached layout is stale.
	InvalidationChannel = "layout:invalidate"
)

// Cache layers and results reported to a CacheRecorder.
const (
	LayerMemory = "memory"
	LayerRedis  = "redis"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

func cacheKey(identifier string) string { return keyPrefix + identifier }

// CacheRecorder observes cache lookups.
type CacheRecorder interface {
	CacheRequest(layer, result string)
}

type noopRecorder struct{}

func (noopRecorder) CacheRequest(string, string) {}

// CacheConfig tunes a Cache. Zero TTLs disable the corresponding layer.
type CacheConfig struct {
	TTL       time.Duration
	MemoryTTL time.Duration
	Clock     clockwork.Clock
	Recorder  CacheRecorder
}

// Cache stores resolved layouts in a short-lived in-process map backed by
// Redis. Redis is shared by every node; invalidations published on
// InvalidationChannel evict the in-process layer everywhere. Redis failures
// are logged and read as misses.
type Cache struct {
	rdb      *goredis.Client
	ttl      time.Duration
	localTTL time.Duration
	clock    clockwork.Clock
	recorder CacheRecorder

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	layout    domain.ResolvedLayout
	expiresAt time.Time
}

var (
	_ ports.LayoutCache = (*Cache)(nil)
	_ ports.Invalidator = (*Cache)(nil)
)

// NewCache creates a cache. client may be nil for a memory-only cache.
func NewCache(client *Client, cfg CacheConfig) *Cache {
	c := &Cache{
		ttl:      cfg.TTL,
		localTTL: cfg.MemoryTTL,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		entries:  make(map[string]*cacheEntry),
	}
	if client != nil {
		c.rdb = client.rdb
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}
	return c
}

// Get returns a copy of the cached layout for identifier.
func (c *Cache) Get(ctx context.Context, identifier string) (domain.ResolvedLayout, bool) {
	if layout, ok := c.getLocal(identifier); ok {
		c.recorder.CacheRequest(LayerMemory, ResultHit)
		return layout, true
	}
	c.recorder.CacheRequest(LayerMemory, ResultMiss)

	if c.rdb == nil || c.ttl <= 0 {
		return domain.ResolvedLayout{}, false
	}
	data, err := c.rdb.Get(ctx, cacheKey(identifier)).Bytes()
	if errors.Is(err, goredis.Nil) {
		c.recorder.CacheRequest(LayerRedis, ResultMiss)
		return domain.ResolvedLayout{}, false
	}
	if err != nil {
		c.recorder.CacheRequest(LayerRedis, ResultError)
		slog.WarnContext(ctx, "Layout cache read failed", "identifier", identifier, "error", err)
		return domain.ResolvedLayout{}, false
	}

	var layout domain.ResolvedLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		c.recorder.CacheRequest(LayerRedis, ResultError)
		slog.WarnContext(ctx, "Discarding undecodable layout cache entry", "identifier", identifier, "error", err)
		_ = c.rdb.Del(ctx, cacheKey(identifier)).Err()
		return domain.ResolvedLayout{}, false
	}
	c.recorder.CacheRequest(LayerRedis, ResultHit)
	c.setLocal(identifier, layout)
	return layout, true
}

// Set stores layout under identifier in both layers.
func (c *Cache) Set(ctx context.Context, identifier string, layout domain.ResolvedLayout) {
	c.setLocal(identifier, layout)

	if c.rdb == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(layout)
	if err != nil {
		slog.WarnContext(ctx, "Encoding layout cache entry failed", "identifier", identifier, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(identifier), data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Layout cache write failed", "identifier", identifier, "error", err)
	}
}

// Invalidate drops identifier from this node and from Redis. Other nodes
// keep their in-process copy until it expires; use Publish to reach them.
func (c *Cache) Invalidate(ctx context.Context, identifier string) error {
	c.evictLocal(identifier)
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, cacheKey(identifier)).Err()
}

// Publish invalidates identifier and announces it on InvalidationChannel.
func (c *Cache) Publish(ctx context.Context, identifier string) error {
	if err := c.Invalidate(ctx, identifier); err != nil {
		return err
	}
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Publish(ctx, InvalidationChannel, identifier).Err()
}

// InvalidateAll empties this node's memory layer and deletes every cached
// layout in Redis.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Subscribe evicts the memory layer for every identifier announced on
// InvalidationChannel. It returns once the subscription is confirmed; the
// listener stops when ctx is cancelled.
func (c *Cache) Subscribe(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	sub := c.rdb.Subscribe(ctx, InvalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				c.evictLocal(msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// EvictExpired removes expired memory entries and returns how many it removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer periodically evicts expired memory entries until the
// returned stop function is called.
func (c *Cache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired layout cache entries", "count", evicted)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (c *Cache) getLocal(identifier string) (domain.ResolvedLayout, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[identifier]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return domain.ResolvedLayout{}, false
	}
	return entry.layout.Clone(), true
}

func (c *Cache) setLocal(identifier string, layout domain.ResolvedLayout) {
	if c.localTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identifier] = &cacheEntry{layout: layout.Clone(), expiresAt: c.clock.Now().Add(c.localTTL)}
}

func (c *Cache) evictLocal(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identifier)
}
