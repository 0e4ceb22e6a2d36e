package profile

import (
	"context"
	"sync"
	"time"

	"github.com/lookatitude/vox-interpret/cache"
	_ "github.com/lookatitude/vox-interpret/cache/providers/inmemory"
)

// Cache is a process-local, TTL-bounded view of UserProfile records. It
// never coordinates with other processes: a profile change made elsewhere
// is only visible here after the TTL expires and the entry is re-fetched
// from Store.
type Cache struct {
	backing cache.Cache
	store   Store
	ttl     time.Duration
	done    chan struct{}

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCache wraps store with an in-memory TTL cache. sweepInterval controls
// how often expired entries still resident in the cache are proactively
// evicted, independent of lazy expiration on access.
func NewCache(store Store, ttl, sweepInterval time.Duration) (*Cache, error) {
	backing, err := cache.New("inmemory", cache.Config{TTL: ttl})
	if err != nil {
		return nil, err
	}
	c := &Cache{backing: backing, store: store, ttl: ttl, done: make(chan struct{}), seen: make(map[string]struct{})}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c, nil
}

// Get returns the cached profile for participantID, fetching and caching it
// from Store on a miss.
func (c *Cache) Get(ctx context.Context, participantID string) (UserProfile, error) {
	c.track(participantID)

	if v, ok, err := c.backing.Get(ctx, participantID); err == nil && ok {
		return v.(UserProfile), nil
	}

	p, err := c.store.Get(ctx, participantID)
	if err != nil {
		return UserProfile{}, err
	}
	_ = c.backing.Set(ctx, participantID, p, c.ttl)
	return p, nil
}

// Invalidate drops participantID's cached entry so the next Get re-fetches
// from Store.
func (c *Cache) Invalidate(ctx context.Context, participantID string) {
	_ = c.backing.Delete(ctx, participantID)
	c.mu.Lock()
	delete(c.seen, participantID)
	c.mu.Unlock()
}

func (c *Cache) track(participantID string) {
	c.mu.Lock()
	c.seen[participantID] = struct{}{}
	c.mu.Unlock()
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// sweepLoop forces expiry checks on every key this cache has ever served,
// since the in-memory backend only expires lazily on access. Without this,
// a participant who never rejoins would keep a stale profile resident in
// memory indefinitely.
func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			keys := make([]string, 0, len(c.seen))
			for k := range c.seen {
				keys = append(keys, k)
			}
			c.mu.Unlock()
			for _, k := range keys {
				_, _, _ = c.backing.Get(ctx, k)
			}
		}
	}
}
