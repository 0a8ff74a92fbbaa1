package validation

import (
	"context"
	"sync"
	"time"
)

// RepositoryLookups answers existence questions for the business-rule pass.
// Adapters back this with the property-mapping store and the PMS repository.
type RepositoryLookups interface {
	PropertyExists(ctx context.Context, hotelCode string) (bool, error)
	RoomTypeExists(ctx context.Context, hotelCode, roomTypeCode string) (bool, error)
	RatePlanExists(ctx context.Context, hotelCode, ratePlanCode string) (bool, error)
}

// DefaultLookupTTL is how long a lookup answer is reused before hitting the
// repository again.
const DefaultLookupTTL = 900 * time.Second

type lookupEntry struct {
	exists  bool
	expires time.Time
}

// CachedLookups memoizes RepositoryLookups answers with a TTL so the rule
// pass does not hammer the repository on large envelopes.
type CachedLookups struct {
	inner RepositoryLookups
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]lookupEntry
}

func NewCachedLookups(inner RepositoryLookups, ttl time.Duration) *CachedLookups {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &CachedLookups{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]lookupEntry),
	}
}

// Invalidate drops every cached answer. Called when mappings or PMS master
// data change.
func (c *CachedLookups) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]lookupEntry)
	c.mu.Unlock()
}

func (c *CachedLookups) cached(key string, load func() (bool, error)) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.exists, nil
	}
	exists, err := load()
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.entries[key] = lookupEntry{exists: exists, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return exists, nil
}

func (c *CachedLookups) PropertyExists(ctx context.Context, hotelCode string) (bool, error) {
	return c.cached("property\x00"+hotelCode, func() (bool, error) {
		return c.inner.PropertyExists(ctx, hotelCode)
	})
}

func (c *CachedLookups) RoomTypeExists(ctx context.Context, hotelCode, roomTypeCode string) (bool, error) {
	return c.cached("roomtype\x00"+hotelCode+"\x00"+roomTypeCode, func() (bool, error) {
		return c.inner.RoomTypeExists(ctx, hotelCode, roomTypeCode)
	})
}

func (c *CachedLookups) RatePlanExists(ctx context.Context, hotelCode, ratePlanCode string) (bool, error) {
	return c.cached("rateplan\x00"+hotelCode+"\x00"+ratePlanCode, func() (bool, error) {
		return c.inner.RatePlanExists(ctx, hotelCode, ratePlanCode)
	})
}
