package details

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	megabyte        = 1024 * 1024
	localCacheSize  = 20 * megabyte
	redisKeyPrefix  = "item-detail"
	layerLocal      = "local"
	layerRedis      = "redis"
	layerCatalog    = "catalog"
	resultHit       = "hit"
	resultMiss      = "miss"
	defaultCacheTTL = 10 * time.Minute

	invalidationChannel = "item-detail-invalidations"
)

//go:generate mockgen -source=$GOFILE -destination=cache_mocks_test.go -package=details_test

type catalog interface {
	Details(ctx context.Context, category progress.Category, ids []int64) (map[int64]progress.ItemDetail, error)
}

// Cache serves item details from an in-process cache, then redis, then the catalog.
// Catalog results are written back to both cache layers.
type Cache struct {
	local          *freecache.Cache
	redisClient    *redis.Client
	catalog        catalog
	ttl            time.Duration
	metricsManager *metrics.Manager
}

func NewCache(
	redisClient *redis.Client,
	catalog catalog,
	ttl time.Duration,
	metricsManager *metrics.Manager,
) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if metricsManager == nil {
		metricsManager = metrics.NewTestManager()
	}
	return &Cache{
		local:          freecache.NewCache(localCacheSize),
		redisClient:    redisClient,
		catalog:        catalog,
		ttl:            ttl,
		metricsManager: metricsManager,
	}
}

func cacheKey(category progress.Category, id int64) string {
	return fmt.Sprintf("%s::%s::%d", redisKeyPrefix, category, id)
}

// Lookup returns the details of the given items. Items missing from the catalog are absent
// from the result. A failing redis is logged and skipped.
func (c *Cache) Lookup(ctx context.Context, category progress.Category, ids []int64) (_ map[int64]progress.ItemDetail, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "details.lookup")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	found := make(map[int64]progress.ItemDetail, len(ids))
	if !category.IsValid() {
		return found, nil
	}

	missing := c.fromLocal(category, uniqueIDs(ids), found)
	if len(missing) == 0 {
		return found, nil
	}

	missing = c.fromRedis(ctx, category, missing, found)
	if len(missing) == 0 {
		return found, nil
	}

	fromCatalog, err := c.catalog.Details(ctx, category, missing)
	if err != nil {
		return nil, fmt.Errorf("catalog details: %w", err)
	}
	for _, id := range missing {
		detail, ok := fromCatalog[id]
		if !ok {
			c.metricsManager.CounterDetailsCache.WithLabelValues(layerCatalog, resultMiss).Inc()
			continue
		}
		c.metricsManager.CounterDetailsCache.WithLabelValues(layerCatalog, resultHit).Inc()
		found[id] = detail
		c.store(ctx, category, detail)
	}
	return found, nil
}

func (c *Cache) fromLocal(category progress.Category, ids []int64, found map[int64]progress.ItemDetail) []int64 {
	var missing []int64
	for _, id := range ids {
		detailBytes, err := c.local.Get([]byte(cacheKey(category, id)))
		if err != nil {
			c.metricsManager.CounterDetailsCache.WithLabelValues(layerLocal, resultMiss).Inc()
			missing = append(missing, id)
			continue
		}
		var detail progress.ItemDetail
		if err := json.Unmarshal(detailBytes, &detail); err != nil {
			log.Errorf("unmarshal item detail [%d] from local cache: %s", id, err)
			missing = append(missing, id)
			continue
		}
		c.metricsManager.CounterDetailsCache.WithLabelValues(layerLocal, resultHit).Inc()
		found[id] = detail
	}
	return missing
}

func (c *Cache) fromRedis(ctx context.Context, category progress.Category, ids []int64, found map[int64]progress.ItemDetail) []int64 {
	if c.redisClient == nil {
		return ids
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(category, id)
	}
	values, err := c.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		log.Errorf("redis mget item details: %s", err)
		return ids
	}

	var missing []int64
	for i, id := range ids {
		var raw string
		if i < len(values) {
			raw, _ = values[i].(string)
		}
		if raw == "" {
			c.metricsManager.CounterDetailsCache.WithLabelValues(layerRedis, resultMiss).Inc()
			missing = append(missing, id)
			continue
		}
		var detail progress.ItemDetail
		if err := json.Unmarshal([]byte(raw), &detail); err != nil {
			log.Errorf("unmarshal item detail [%d] from redis: %s", id, err)
			missing = append(missing, id)
			continue
		}
		c.metricsManager.CounterDetailsCache.WithLabelValues(layerRedis, resultHit).Inc()
		found[id] = detail
		if err := c.local.Set([]byte(keys[i]), []byte(raw), int(c.ttl.Seconds())); err != nil {
			log.Errorf("set item detail [%d] local cache: %s", id, err)
		}
	}
	return missing
}

func (c *Cache) store(ctx context.Context, category progress.Category, detail progress.ItemDetail) {
	detailBytes, err := json.Marshal(detail)
	if err != nil {
		log.Errorf("marshal item detail [%d]: %s", detail.ItemID, err)
		return
	}
	key := cacheKey(category, detail.ItemID)
	if err := c.local.Set([]byte(key), detailBytes, int(c.ttl.Seconds())); err != nil {
		log.Errorf("set item detail [%d] local cache: %s", detail.ItemID, err)
	}
	if c.redisClient == nil {
		return
	}
	if err := c.redisClient.Set(ctx, key, string(detailBytes), c.ttl).Err(); err != nil {
		log.Errorf("set item detail [%d] in redis: %s", detail.ItemID, err)
	}
}

// Invalidate drops the items from both cache layers, e.g. after a catalog edit, and tells
// the other service instances to drop their local copies.
func (c *Cache) Invalidate(ctx context.Context, category progress.Category, ids ...int64) error {
	keys := make([]string, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		key := cacheKey(category, id)
		c.local.Del([]byte(key))
		keys = append(keys, key)
	}
	if c.redisClient == nil || len(keys) == 0 {
		return nil
	}

	if err := c.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %v: %w", keys, err)
	}
	for _, key := range keys {
		if err := c.redisClient.Publish(ctx, invalidationChannel, key).Err(); err != nil {
			return fmt.Errorf("publish invalidation [%s]: %w", key, err)
		}
	}
	return nil
}

// ListenInvalidations drops local entries invalidated by any instance, until ctx is done.
func (c *Cache) ListenInvalidations(ctx context.Context) {
	if c.redisClient == nil {
		return
	}
	sub := c.redisClient.Subscribe(ctx, invalidationChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			log.Errorf("close item detail invalidations subscription: %s", err)
		}
	}()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.dropLocal(msg.Payload)
		}
	}
}

func (c *Cache) dropLocal(key string) {
	if !strings.HasPrefix(key, redisKeyPrefix+"::") {
		log.Warnf("ignoring item detail invalidation of [%s]", key)
		return
	}
	if c.local.Del([]byte(key)) {
		log.Tracef("item detail [%s] dropped from local cache", key)
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
