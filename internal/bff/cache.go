package bff

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saastenant/orchestrator/internal/cache"
)

// lockTTL bounds how long a distributed fetch lock is held before it
// is considered abandoned (a crashed BFF instance must not wedge every
// other instance's cache population forever).
const lockTTL = 10 * time.Second

// Fetcher produces the response body for a cache miss.
type Fetcher func(ctx context.Context) ([]byte, error)

// Cache is the at-most-one-in-flight fetch cache spec §4.E requires:
// within one process, concurrent requests for the same fingerprint
// collapse onto a single Fetcher call via singleflight; across
// processes, a cache.Store advisory lock prevents a thundering herd of
// BFF instances populating the same key simultaneously.
type Cache struct {
	store cache.Store
	group singleflight.Group
}

func NewCache(store cache.Store) *Cache {
	return &Cache{store: store}
}

// Get returns the cached value for fingerprint, populating it with
// fetch on a miss. ttl governs how long the populated entry survives.
func (c *Cache) Get(ctx context.Context, fingerprint string, ttl time.Duration, fetch Fetcher) ([]byte, error) {
	if v, err := c.store.Get(ctx, fingerprint); err == nil {
		return v, nil
	} else if err != cache.ErrNotFound {
		return nil, err
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		return c.populate(ctx, fingerprint, ttl, fetch)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// populate holds the distributed lock while it re-checks the cache
// (another process may have just finished populating it) and, on a
// genuine miss, calls fetch and writes the result. When another process
// holds the lock, populate waits up to lockTTL for that process's entry
// to appear and fetches itself only if it does not.
func (c *Cache) populate(ctx context.Context, fingerprint string, ttl time.Duration, fetch Fetcher) ([]byte, error) {
	release, acquired, err := c.store.Lock(ctx, "bfflock:"+fingerprint, lockTTL)
	if err != nil {
		return nil, err
	}
	if acquired {
		defer release(ctx)
	} else {
		for deadline := time.Now().Add(lockTTL); time.Now().Before(deadline); {
			if v, gerr := c.store.Get(ctx, fingerprint); gerr == nil {
				return v, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}

	if v, gerr := c.store.Get(ctx, fingerprint); gerr == nil {
		return v, nil
	} else if gerr != cache.ErrNotFound {
		return nil, gerr
	}

	body, ferr := fetch(ctx)
	if ferr != nil {
		return nil, ferr
	}
	if serr := c.store.Set(ctx, fingerprint, body, ttl); serr != nil {
		return nil, serr
	}
	return body, nil
}

// Invalidate removes a single cached response by its fingerprint.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.store.Delete(ctx, fingerprint)
}
