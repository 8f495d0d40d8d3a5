// Package quota implements the sliding-window rate limiter, account
// lockout, and tenant resource quota enforcer (component D). Login
// attempt counters are namespaced login_attempts:{scope}:{tenant}:{subject},
// quota counters license_quota:{tenant}:{resource}; every counter
// lives in internal/cache.Store so the same Redis deployment backs
// both this package and internal/bff's response cache.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/saastenant/orchestrator/internal/cache"
)

// Counter wraps a cache.Store with the count/expiry/clear vocabulary
// spec §4.D names directly, so callers never touch raw byte encoding.
type Counter struct {
	store cache.Store
}

func NewCounter(store cache.Store) *Counter {
	return &Counter{store: store}
}

func counterKey(scope, tenantID, subject string) string {
	return fmt.Sprintf("login_attempts:%s:%s:%s", scope, tenantID, subject)
}

// GetCount returns the current value of key, or 0 if the window has
// not started (or has expired).
func (c *Counter) GetCount(ctx context.Context, key string) (int64, error) {
	b, err := c.store.Get(ctx, key)
	if err == cache.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(string(b), 10, 64)
	if perr != nil {
		return 0, nil
	}
	return n, nil
}

// Increment bumps key by one, creating a window of the given duration
// if the key did not already exist (spec §4.D counter model).
func (c *Counter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.store.Incr(ctx, key, window)
}

// SetWithExpiry stores value with an explicit ttl, used to set the
// account_lock marker with expires_at baked into the ttl itself.
func (c *Counter) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

// GetExpiry returns the remaining ttl for key and whether it exists.
func (c *Counter) GetExpiry(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := c.store.TTL(ctx, key)
	if err == cache.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ttl, true, nil
}

// Clear removes key entirely.
func (c *Counter) Clear(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
