package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/activate/internal/adapter/metrics"
	"github.com/pscheid92/activate/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisCacheTTL = 1 * time.Hour

	// Generation keys outlive the entries they guard.
	generationTTL = 2 * redisCacheTTL
)

// setIfGeneration writes a binding back to Redis only if no Invalidate bumped
// the channel's generation since the reader snapshotted it.
// KEYS: binding key, generation key. ARGV: snapshot, value, TTL seconds.
var setIfGeneration = goredis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
return 1
`)

// BindingCache is a read-through domain.BindingStore: in-memory first, then
// Redis, then the wrapped store. Not-found results are never cached.
// Bindings carry a generation per layer so a read that overlaps an
// Invalidate never writes its stale result back. Media records are immutable
// and cached unconditionally.
type BindingCache struct {
	rdb      goredis.Cmdable
	store    domain.BindingStore
	clock    clockwork.Clock
	bindings *memoryCache[string, domain.ChannelBinding]
	media    *memoryCache[uuid.UUID, domain.MediaRecord]
	metrics  *metrics.CacheMetrics
}

// NewBindingCache creates the cache. cacheMetrics may be nil.
func NewBindingCache(rdb goredis.Cmdable, store domain.BindingStore, clock clockwork.Clock, memTTL time.Duration, cacheMetrics *metrics.CacheMetrics) *BindingCache {
	return &BindingCache{
		rdb:      rdb,
		store:    store,
		clock:    clock,
		bindings: newMemoryCache[string, domain.ChannelBinding](clock, memTTL),
		media:    newMemoryCache[uuid.UUID, domain.MediaRecord](clock, memTTL),
		metrics:  cacheMetrics,
	}
}

// StartEvictionTimer periodically drops expired in-memory entries.
// Returns a stop function that should be deferred.
func (c *BindingCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				c.sweep()
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func (c *BindingCache) sweep() {
	evicted := c.bindings.evictExpired() + c.media.evictExpired()
	if c.metrics != nil {
		c.metrics.Evicted.Add(float64(evicted))
		c.metrics.MemoryEntries.WithLabelValues(metrics.RecordBinding).Set(float64(c.bindings.size()))
		c.metrics.MemoryEntries.WithLabelValues(metrics.RecordMedia).Set(float64(c.media.size()))
	}
	if evicted > 0 {
		slog.Debug("Evicted expired binding cache entries", "count", evicted, "remaining", c.bindings.size()+c.media.size())
	}
}

func (c *BindingCache) FindChannelBinding(ctx context.Context, channelID string) (*domain.ChannelBinding, error) {
	if binding, ok := c.bindings.get(channelID); ok {
		c.served(metrics.RecordBinding, metrics.ServedMemory)
		return &binding, nil
	}

	localGen := c.bindings.generation(channelID)
	var binding domain.ChannelBinding
	remoteGen, cached := c.getBinding(ctx, channelID, &binding)
	if cached {
		c.served(metrics.RecordBinding, metrics.ServedRedis)
		c.bindings.setIfGeneration(channelID, binding, localGen)
		return &binding, nil
	}

	found, err := c.store.FindChannelBinding(ctx, channelID)
	if err != nil {
		c.served(metrics.RecordBinding, storeOutcome(err))
		return nil, err
	}
	c.served(metrics.RecordBinding, metrics.ServedStore)

	if !c.bindings.setIfGeneration(channelID, *found, localGen) {
		slog.DebugContext(ctx, "Binding invalidated during lookup, not caching", "channel_id", channelID)
		return found, nil
	}
	if remoteGen != "" {
		c.writeBinding(ctx, channelID, found, remoteGen)
	}
	return found, nil
}

func (c *BindingCache) FindMedia(ctx context.Context, mediaID uuid.UUID) (*domain.MediaRecord, error) {
	if media, ok := c.media.get(mediaID); ok {
		c.served(metrics.RecordMedia, metrics.ServedMemory)
		return &media, nil
	}

	var media domain.MediaRecord
	if c.getCached(ctx, mediaKey(mediaID), &media) {
		c.served(metrics.RecordMedia, metrics.ServedRedis)
		c.media.set(mediaID, media)
		return &media, nil
	}

	found, err := c.store.FindMedia(ctx, mediaID)
	if err != nil {
		c.served(metrics.RecordMedia, storeOutcome(err))
		return nil, err
	}
	c.served(metrics.RecordMedia, metrics.ServedStore)

	c.media.set(mediaID, *found)
	c.writeCache(ctx, mediaKey(mediaID), found)
	return found, nil
}

// Invalidate drops the channel's binding from both cache layers and bumps
// its generation in each.
func (c *BindingCache) Invalidate(ctx context.Context, channelID string) error {
	c.bindings.invalidate(channelID)
	c.invalidated(metrics.ScopeCluster)

	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, bindingGenKey(channelID))
		pipe.Expire(ctx, bindingGenKey(channelID), generationTTL)
		pipe.Del(ctx, bindingKey(channelID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate binding cache: %w", err)
	}
	return nil
}

// InvalidateLocal drops the channel's binding from the in-memory layer only.
func (c *BindingCache) InvalidateLocal(channelID string) {
	c.bindings.invalidate(channelID)
	c.invalidated(metrics.ScopeLocal)
}

func (c *BindingCache) writeCache(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal record for Redis cache", "key", key, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, key, encoded, redisCacheTTL).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis binding cache", "key", key, "error", err)
	}
}

// getBinding reads the cached binding and the channel's generation in one
// round trip. An empty generation means Redis could not be read and the
// caller must not write back.
func (c *BindingCache) getBinding(ctx context.Context, channelID string, dst *domain.ChannelBinding) (gen string, ok bool) {
	vals, err := c.rdb.MGet(ctx, bindingKey(channelID), bindingGenKey(channelID)).Result()
	if err != nil {
		slog.WarnContext(ctx, "Redis binding cache MGET failed", "channel_id", channelID, "error", err)
		return "", false
	}

	gen = "0"
	if s, isString := vals[1].(string); isString {
		gen = s
	}
	data, isString := vals[0].(string)
	if !isString {
		return gen, false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached record", "key", bindingKey(channelID), "error", err)
		return gen, false
	}
	return gen, true
}

func (c *BindingCache) writeBinding(ctx context.Context, channelID string, binding *domain.ChannelBinding, gen string) {
	encoded, err := json.Marshal(binding)
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal record for Redis cache", "channel_id", channelID, "error", err)
		return
	}

	keys := []string{bindingKey(channelID), bindingGenKey(channelID)}
	written, err := setIfGeneration.Run(ctx, c.rdb, keys, gen, encoded, int(redisCacheTTL.Seconds())).Int()
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Failed to populate Redis binding cache", "channel_id", channelID, "error", err)
	case written == 0:
		slog.DebugContext(ctx, "Binding invalidated by another instance during lookup, not caching", "channel_id", channelID)
	}
}

func (c *BindingCache) getCached(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis binding cache GET failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached record", "key", key, "error", err)
		return false
	}
	return true
}

func (c *BindingCache) served(record, by string) {
	if c.metrics != nil {
		c.metrics.Lookups.WithLabelValues(record, by).Inc()
	}
}

func (c *BindingCache) invalidated(scope string) {
	if c.metrics != nil {
		c.metrics.Invalidations.WithLabelValues(scope).Inc()
	}
}

// storeOutcome labels a failed store read. A missing record is an answer
// from the store, not a failure of it.
func storeOutcome(err error) string {
	if errors.Is(err, domain.ErrChannelNotFound) || errors.Is(err, domain.ErrMediaNotFound) {
		return metrics.ServedStore
	}
	return metrics.ServedError
}

func bindingKey(channelID string) string {
	return "binding:" + channelID
}

func bindingGenKey(channelID string) string {
	return "binding-gen:" + channelID
}

func mediaKey(mediaID uuid.UUID) string {
	return "media:" + mediaID.String()
}
