package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotelayout/internal/domain"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) CacheRequest(layer, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[layer+"/"+result]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (c *Cache) cachedLocally(identifier string) bool {
	_, ok := c.getLocal(identifier)
	return ok
}

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleResolved() domain.ResolvedLayout {
	return domain.ResolvedLayout{
		Source:            domain.SourceLayoutTemplate,
		CompanyInternalID: "C1",
		TemplateID:        "T1",
		Branding:          &domain.BrandingOverrides{AssignedTemplateID: domain.Ptr("T1"), PrimaryColor: domain.Ptr("#e11d48")},
		Config: domain.LayoutConfig{
			Version:      3,
			GlobalStyles: map[string]string{"primaryColor": "#111"},
			Sections: []domain.Section{
				{ID: "a", Label: "A", Type: domain.SectionCustomHTML, Visible: true, HTML: "<p>{{x}}</p>"},
				{ID: "b", Label: "B", Type: domain.SectionBuiltIn, Visible: true, Component: "inventory_table",
					Config: map[string]any{"title": "Items"}},
			},
		},
	}
}

func TestCache_MemoryHit(t *testing.T) {
	_, client := setupMiniredis(t)
	rec := newCountingRecorder()
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: 10 * time.Second, Clock: clockwork.NewFakeClock(), Recorder: rec})
	ctx := context.Background()

	c.Set(ctx, "C1", sampleResolved())
	got, ok := c.Get(ctx, "C1")

	require.True(t, ok)
	assert.Equal(t, sampleResolved(), got)
	assert.Equal(t, 1, rec.get("memory/hit"))
	assert.Zero(t, rec.get("redis/hit"))
}

func TestCache_FallsBackToRedisAfterMemoryExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	clock := clockwork.NewFakeClock()
	rec := newCountingRecorder()
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: 10 * time.Second, Clock: clock, Recorder: rec})
	ctx := context.Background()

	c.Set(ctx, "C1", sampleResolved())
	assert.True(t, mr.Exists("layout_cache:C1"))

	clock.Advance(11 * time.Second)
	got, ok := c.Get(ctx, "C1")
	require.True(t, ok)
	assert.Equal(t, sampleResolved(), got)
	assert.Equal(t, 1, rec.get("redis/hit"))

	// The redis hit repopulated the memory layer.
	_, ok = c.Get(ctx, "C1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.get("memory/hit"))
}

func TestCache_RedisTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	clock := clockwork.NewFakeClock()
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: 10 * time.Second, Clock: clock})
	ctx := context.Background()

	c.Set(ctx, "C1", sampleResolved())
	clock.Advance(2 * time.Minute)
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "C1")
	assert.False(t, ok)
}

func TestCache_ReturnsCopies(t *testing.T) {
	_, client := setupMiniredis(t)
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: time.Minute, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	original := sampleResolved()
	c.Set(ctx, "C1", original)
	original.Config.GlobalStyles["primaryColor"] = "#000"

	got, ok := c.Get(ctx, "C1")
	require.True(t, ok)
	got.Config.Sections[1].Config["title"] = "changed"

	again, _ := c.Get(ctx, "C1")
	assert.Equal(t, "#111", again.Config.GlobalStyles["primaryColor"])
	assert.Equal(t, "Items", again.Config.Sections[1].Config["title"])
}

func TestCache_Invalidate(t *testing.T) {
	mr, client := setupMiniredis(t)
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: time.Minute, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	c.Set(ctx, "C1", sampleResolved())
	c.Set(ctx, "ext-1", sampleResolved())
	require.NoError(t, c.Invalidate(ctx, "C1"))

	_, ok := c.Get(ctx, "C1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("layout_cache:C1"))

	_, ok = c.Get(ctx, "ext-1")
	assert.True(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	mr, client := setupMiniredis(t)
	c := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: time.Minute, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "keep"))

	for _, id := range []string{"a", "b", "c"} {
		c.Set(ctx, id, sampleResolved())
	}
	require.NoError(t, c.InvalidateAll(ctx))

	for _, id := range []string{"a", "b", "c"} {
		_, ok := c.Get(ctx, id)
		assert.False(t, ok, id)
	}
	assert.True(t, mr.Exists("unrelated"))
}

func TestCache_PublishEvictsOtherNodes(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: time.Minute, Clock: clockwork.NewFakeClock()})
	nodeB := NewCache(client, CacheConfig{TTL: time.Minute, MemoryTTL: time.Minute, Clock: clockwork.NewFakeClock()})
	require.NoError(t, nodeB.Subscribe(ctx))

	nodeB.Set(ctx, "C1", sampleResolved())
	require.True(t, nodeB.cachedLocally("C1"))

	require.NoError(t, nodeA.Publish(ctx, "C1"))

	assert.Eventually(t, func() bool { return !nodeB.cachedLocally("C1") }, 2*time.Second, 10*time.Millisecond)
	_, ok := nodeB.Get(ctx, "C1")
	assert.False(t, ok)
}

func TestCache_RedisUnavailableReadsAsMiss(t *testing.T) {
	mr, client := setupMiniredis(t)
	rec := newCountingRecorder()
	c := NewCache(client, CacheConfig{TTL: time.Minute, Clock: clockwork.NewFakeClock(), Recorder: rec})
	ctx := context.Background()
	mr.Close()

	c.Set(ctx, "C1", sampleResolved())
	_, ok := c.Get(ctx, "C1")

	assert.False(t, ok)
	assert.Equal(t, 1, rec.get("redis/error"))
}

func TestCache_UndecodableEntryIsDropped(t *testing.T) {
	mr, client := setupMiniredis(t)
	c := NewCache(client, CacheConfig{TTL: time.Minute, Clock: clockwork.NewFakeClock()})
	require.NoError(t, mr.Set("layout_cache:C1", "{not json"))

	_, ok := c.Get(context.Background(), "C1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("layout_cache:C1"))
}

func TestCache_MemoryOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(nil, CacheConfig{MemoryTTL: time.Second, Clock: clock})
	ctx := context.Background()

	c.Set(ctx, "C1", sampleResolved())
	_, ok := c.Get(ctx, "C1")
	assert.True(t, ok)

	require.NoError(t, c.Publish(ctx, "C1"))
	_, ok = c.Get(ctx, "C1")
	assert.False(t, ok)

	require.NoError(t, c.Subscribe(ctx))
}

func TestCache_EvictExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(nil, CacheConfig{MemoryTTL: time.Second, Clock: clock})
	ctx := context.Background()

	c.Set(ctx, "a", sampleResolved())
	clock.Advance(500 * time.Millisecond)
	c.Set(ctx, "b", sampleResolved())
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 1, c.EvictExpired())
	assert.True(t, c.cachedLocally("b"))
}
