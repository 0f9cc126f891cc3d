package discount

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a rule snapshot may serve reads without
// revisiting the store.
const DefaultCacheTTL = 15 * time.Minute

// CachedRules is a time-bounded snapshot of the active rule set. Reads hit
// the snapshot until it expires or Invalidate is called; misses fetch from
// the underlying source, collapsed through singleflight so a burst of
// concurrent misses triggers one fetch. A failed fetch is a hard error for
// the caller; no stale snapshot is ever served past its TTL.
type CachedRules struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	snapshot  []Rule
	fetchedAt time.Time
	gen       uint64
}

// NewCachedRules wraps source with a TTL cache. A non-positive ttl falls
// back to DefaultCacheTTL. The cache starts empty and populates on first
// read.
func NewCachedRules(source Source, ttl time.Duration) *CachedRules {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRules{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Rules returns the cached active rule snapshot, fetching from the source
// when the snapshot is missing or expired.
func (c *CachedRules) Rules(ctx context.Context) ([]Rule, error) {
	c.mu.Lock()
	if c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		rules := c.snapshot
		c.mu.Unlock()
		return rules, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do("rules", func() (interface{}, error) {
		rules, err := c.source.Rules(ctx)
		if err != nil {
			return nil, err
		}
		if rules == nil {
			// Distinguish "fetched and empty" from "never fetched".
			rules = []Rule{}
		}

		c.mu.Lock()
		// An Invalidate that landed while the fetch was in flight bumped
		// the generation; this result may predate the write, so it serves
		// the current callers but must not become the snapshot.
		if c.gen == gen {
			c.snapshot = rules
			c.fetchedAt = c.now()
		}
		c.mu.Unlock()

		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Rule), nil
}

// Invalidate unconditionally drops the snapshot. Rule admin writes call it
// synchronously so the next read observes fresh data.
func (c *CachedRules) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget("rules")
}
