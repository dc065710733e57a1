package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fundingflow/logger"
	"fundingflow/models"
)

// refreshKey is the single-flight key; the cache holds one merged snapshot,
// so one key is enough.
const refreshKey = "snapshot"

// Runner produces a fresh snapshot. Satisfied by aggregator.Orchestrator.
type Runner interface {
	Run(ctx context.Context) *models.AggregateSnapshot
}

// SnapshotCache memoizes the latest aggregation result behind a freshness
// window. Concurrent callers hitting a stale cache share one refresh run
// instead of each triggering their own.
type SnapshotCache struct {
	runner Runner
	ttl    time.Duration
	log    *logger.Log

	// baseCtx scopes refresh runs to the cache's lifecycle rather than any
	// single request, so one caller disconnecting cannot cancel a run that
	// other callers are waiting on.
	baseCtx context.Context

	// now is swappable in tests.
	now func() time.Time

	mu    sync.RWMutex
	entry *models.CacheEntry

	group singleflight.Group
}

type refreshResult struct {
	snapshot  *models.AggregateSnapshot
	fromCache bool
	remaining time.Duration
}

// NewSnapshotCache creates the cache. ctx bounds the lifetime of refresh
// runs; pass the process context.
func NewSnapshotCache(ctx context.Context, runner Runner, ttl time.Duration) *SnapshotCache {
	log := logger.GetLogger()
	log.WithComponent("cache").WithFields(logger.Fields{"ttl": ttl}).Info("snapshot cache initialized")

	return &SnapshotCache{
		runner:  runner,
		ttl:     ttl,
		log:     log,
		baseCtx: ctx,
		now:     time.Now,
	}
}

// Get returns the current snapshot, whether it was served from cache, and
// the remaining freshness window. A stale or absent entry triggers exactly
// one aggregation run no matter how many callers arrive at once.
func (c *SnapshotCache) Get(ctx context.Context) (*models.AggregateSnapshot, bool, time.Duration) {
	if snap, remaining, ok := c.fresh(); ok {
		logger.IncrementCacheHit()
		return snap, true, remaining
	}

	logger.IncrementCacheMiss()
	v, _, shared := c.group.Do(refreshKey, func() (interface{}, error) {
		// Another caller may have completed a refresh between our staleness
		// check and entering the flight.
		if snap, remaining, ok := c.fresh(); ok {
			return refreshResult{snapshot: snap, fromCache: true, remaining: remaining}, nil
		}

		snap := c.runner.Run(c.baseCtx)

		c.mu.Lock()
		c.entry = &models.CacheEntry{Snapshot: snap, StoredAt: c.now()}
		c.mu.Unlock()

		return refreshResult{snapshot: snap, fromCache: false, remaining: c.ttl}, nil
	})

	result := v.(refreshResult)
	if shared {
		c.log.WithComponent("cache").Debug("joined in-flight refresh")
	}
	return result.snapshot, result.fromCache, result.remaining
}

// Entry returns the current cache entry, nil before the first run. The
// status endpoint reads it without forcing a refresh.
func (c *SnapshotCache) Entry() *models.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// TTL returns the configured freshness window.
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

func (c *SnapshotCache) fresh() (*models.AggregateSnapshot, time.Duration, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil {
		return nil, 0, false
	}
	age := c.now().Sub(entry.StoredAt)
	if age >= c.ttl {
		return nil, 0, false
	}
	return entry.Snapshot, c.ttl - age, true
}
