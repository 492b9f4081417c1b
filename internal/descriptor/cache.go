package descriptor

import (
	"strconv"
	"sync"

	"projsync/internal/fsutil"
	"projsync/internal/logging"
	"projsync/internal/metrics"
)

type CacheOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Cache maps absolute descriptor paths to parsed descriptors. It lives for
// the lifetime of the host process and is shared by the resolver, the
// persister and the deletion batcher.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Descriptor
	suppressed int
	// generations counts invalidations per path and epoch counts
	// InvalidateAll calls, so a parse that raced an invalidation is not
	// stored.
	generations map[string]uint64
	epoch       uint64
	logger     *logging.Logger
	metrics    *metrics.Registry
}

func NewCache(options CacheOptions) *Cache {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{
		entries:     make(map[string]*Descriptor),
		generations: make(map[string]uint64),
		logger:      logger.Category("cache"),
		metrics: options.Metrics,
	}
}

func cacheKey(path string) string {
	return fsutil.AbsClean(path)
}

func (c *Cache) Get(path string) (*Descriptor, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	descriptor, ok := c.entries[cacheKey(path)]
	c.mu.Unlock()
	if ok {
		c.metrics.IncCacheHit()
	} else {
		c.metrics.IncCacheMiss()
	}
	return descriptor, ok
}

func (c *Cache) peek(path string) (*Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	descriptor, ok := c.entries[cacheKey(path)]
	return descriptor, ok
}

// Put stores descriptor under path unless an entry already exists, and
// returns the entry that is live afterwards.
func (c *Cache) Put(path string, descriptor *Descriptor) *Descriptor {
	if c == nil || descriptor == nil {
		return descriptor
	}
	key := cacheKey(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = descriptor
	return descriptor
}

// generation identifies the state of one path's invalidation history.
type generation struct {
	epoch uint64
	path  uint64
}

func (c *Cache) generationOf(path string) generation {
	if c == nil {
		return generation{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{epoch: c.epoch, path: c.generations[cacheKey(path)]}
}

// putAt is Put for a descriptor parsed when path was at gen. It stores
// nothing and reports false when path was invalidated since.
func (c *Cache) putAt(path string, descriptor *Descriptor, gen generation) (*Descriptor, bool) {
	if c == nil {
		return descriptor, true
	}
	key := cacheKey(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, true
	}
	if c.epoch != gen.epoch || c.generations[key] != gen.path {
		return descriptor, false
	}
	c.entries[key] = descriptor
	return descriptor, true
}

// Invalidate evicts path. While invalidation is suppressed the call is
// recorded and ignored. It reports whether an entry was evicted.
func (c *Cache) Invalidate(path string) bool {
	if c == nil {
		return false
	}
	key := cacheKey(path)
	c.mu.Lock()
	if c.suppressed > 0 {
		c.mu.Unlock()
		c.metrics.IncInvalidation(true)
		c.logger.Debug("invalidation suppressed", map[string]string{"path": key})
		return false
	}
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.generations[key]++
	c.mu.Unlock()

	if ok {
		c.metrics.IncInvalidation(false)
		c.logger.Debug("descriptor invalidated", map[string]string{"path": key})
	}
	return ok
}

// InvalidateAll evicts every entry regardless of suppression.
func (c *Cache) InvalidateAll() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	count := len(c.entries)
	c.entries = make(map[string]*Descriptor)
	c.generations = make(map[string]uint64)
	c.epoch++
	c.mu.Unlock()

	c.logger.Debug("descriptor cache cleared", map[string]string{"evicted": strconv.Itoa(count)})
	return count
}

// Discard evicts descriptor if it is still the live entry for its path,
// regardless of suppression. Callers use it for a handle they found to be
// out of date with its file.
func (c *Cache) Discard(descriptor *Descriptor) bool {
	if c == nil || descriptor == nil {
		return false
	}
	key := cacheKey(descriptor.Path())
	c.mu.Lock()
	current, ok := c.entries[key]
	evicted := ok && current == descriptor
	if evicted {
		delete(c.entries, key)
	}
	c.generations[key]++
	c.mu.Unlock()

	if evicted {
		c.metrics.IncInvalidation(false)
		c.logger.Debug("stale descriptor discarded", map[string]string{"path": key})
	}
	return evicted
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Suppressed() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed > 0
}

// Suppress turns Invalidate into a no-op until the returned guard is
// released. Guards nest.
func (c *Cache) Suppress() *SuppressionGuard {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.suppressed++
	c.mu.Unlock()
	return &SuppressionGuard{cache: c}
}

// SuppressionGuard holds invalidation suppression. Release is idempotent and
// safe on a nil guard.
type SuppressionGuard struct {
	cache *Cache
	once  sync.Once
}

func (g *SuppressionGuard) Release() {
	if g == nil || g.cache == nil {
		return
	}
	g.once.Do(func() {
		g.cache.mu.Lock()
		if g.cache.suppressed > 0 {
			g.cache.suppressed--
		}
		g.cache.mu.Unlock()
	})
}
