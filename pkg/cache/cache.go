package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/observability"
)

type entry struct {
	data    []byte
	expires time.Time
}

// TieredCache keeps recently computed statistics in a process-local LRU in
// front of an optional shared Remote. Values are stored as JSON so both tiers
// hold identical bytes.
type TieredCache struct {
	config  Config
	l1      *lru.LRU[string, entry]
	l2      Remote
	metrics *observability.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewTieredCache creates a cache. remote may be nil for a local-only cache.
func NewTieredCache(config Config, remote Remote, metrics *observability.Metrics, logger logrus.FieldLogger) *TieredCache {
	defaults := DefaultConfig()
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.L1TTL <= 0 {
		config.L1TTL = defaults.L1TTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &TieredCache{
		config:  config,
		l1:      lru.NewLRU[string, entry](config.MaxEntries, nil, config.L1TTL),
		l2:      remote,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Get decodes the cached value for key into dest. An L2 hit is promoted to L1.
func (c *TieredCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if key == "" {
		return false, ErrInvalidCacheKey
	}

	if e, ok := c.l1.Get(key); ok && c.now().Before(e.expires) {
		c.metrics.RecordCache("l1", true)
		return true, json.Unmarshal(e.data, dest)
	}
	c.metrics.RecordCache("l1", false)

	if c.l2 == nil {
		return false, nil
	}

	data, err := c.l2.GetRaw(ctx, key)
	if err != nil {
		return false, fmt.Errorf("l2 get %s: %w", key, err)
	}
	if data == nil {
		c.metrics.RecordCache("l2", false)
		return false, nil
	}
	c.metrics.RecordCache("l2", true)

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	c.l1.Add(key, entry{data: data, expires: c.now().Add(c.config.L1TTL)})
	return true, nil
}

// Set stores value in both tiers. The L1 copy lives for at most ttl.
func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidCacheKey
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	l1TTL := c.config.L1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	c.l1.Add(key, entry{data: data, expires: c.now().Add(l1TTL)})

	if c.l2 != nil {
		if err := c.l2.SetRaw(ctx, key, data, ttl); err != nil {
			return fmt.Errorf("l2 set %s: %w", key, err)
		}
	}
	return nil
}

// Invalidate drops every local entry and the shared keys matching the glob
// patterns. Other replicas keep their local copies until L1TTL passes.
func (c *TieredCache) Invalidate(ctx context.Context, patterns ...string) error {
	c.l1.Purge()
	if c.l2 == nil || len(patterns) == 0 {
		return nil
	}
	if err := c.l2.InvalidatePatterns(ctx, patterns...); err != nil {
		return fmt.Errorf("l2 invalidate: %w", err)
	}
	c.logger.WithField("patterns", patterns).Debug("invalidated statistics cache")
	return nil
}
