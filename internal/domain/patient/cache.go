package patient

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a loaded snapshot is reused across page renders.
const DefaultCacheTTL = time.Minute

// CachedRepository serves Load from a short-lived snapshot of the wrapped
// repository. Callers always get their own deep copy, so in-memory edits never
// leak into the cache before they are saved.
type CachedRepository struct {
	next    Repository
	ttl     time.Duration
	metrics MetricsRecorder

	mu        sync.RWMutex
	snapshot  *Table
	fetchedAt time.Time
	// gen changes on every Save and Invalidate; a store read that started
	// under an older generation is not cached.
	gen uint64

	group singleflight.Group
}

// NewCachedRepository wraps next with a load cache. A non-positive ttl
// disables caching.
func NewCachedRepository(next Repository, ttl time.Duration, metrics MetricsRecorder) *CachedRepository {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CachedRepository{next: next, ttl: ttl, metrics: metrics}
}

// Load returns the cached snapshot while it is fresh, otherwise reads the
// store. Concurrent misses share one store read, which is not cancelled when
// the caller that started it goes away.
func (c *CachedRepository) Load(ctx context.Context) (*Table, error) {
	c.mu.RLock()
	snap, fetchedAt, gen := c.snapshot, c.fetchedAt, c.gen
	c.mu.RUnlock()

	if snap != nil && timeNow().Sub(fetchedAt) < c.ttl {
		c.metrics.CacheLookup(true)
		return snap.Clone(), nil
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		t, err := c.next.Load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.storeAt(gen, t.Clone())
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table).Clone(), nil
}

// Save writes through to the store. On success the saved table becomes the
// cached snapshot; on failure the cache is dropped so the next Load rereads
// the last committed state.
func (c *CachedRepository) Save(ctx context.Context, t *Table) error {
	err := c.next.Save(ctx, t)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if err != nil {
		c.snapshot, c.fetchedAt = nil, time.Time{}
		return err
	}
	if c.ttl > 0 {
		c.snapshot, c.fetchedAt = t.Clone(), timeNow()
	}
	return nil
}

// Invalidate forgets the cached snapshot.
func (c *CachedRepository) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// storeAt caches t unless a Save or Invalidate happened since gen was read.
func (c *CachedRepository) storeAt(gen uint64, t *Table) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.snapshot = t
	c.fetchedAt = timeNow()
}
