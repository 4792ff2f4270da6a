// Package history provides a keyed, time-windowed cache of processed
// history snapshots. It owns cache-key normalization, TTL staleness,
// overlap reads, and in-flight request deduplication; it never cancels a
// caller's fetch on its own.
package history

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"cauldronwatch"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached window stays valid for reads.
const DefaultTTL = 5 * time.Minute

// keyBucket is the granularity cache keys are rounded to, so near-identical
// requests (two "last 24h" calls seconds apart) collapse to the same key.
const keyBucket = 5 * time.Minute

// Range is a half-open [Start, End] history window.
type Range struct {
	Start time.Time
	End   time.Time
}

// Loader fetches a window from the network when the cache cannot serve it.
type Loader func(ctx context.Context) ([]cauldronwatch.HistorySnapshot, error)

type entry struct {
	rng       Range
	data      []cauldronwatch.HistorySnapshot
	fetchedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	flight    singleflight.Group
	flightKey map[string]struct{} // keys with an in-flight fetch

	now func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:       ttl,
		entries:   make(map[string]entry),
		flightKey: make(map[string]struct{}),
		now:       time.Now,
	}
}

// Key normalizes a range to its cache key: start/end bucketed to 5-minute
// boundaries, grouped by the rounded total span in hours.
func Key(r Range) string {
	start := r.Start.Truncate(keyBucket).Unix()
	end := r.End.Truncate(keyBucket).Unix()
	hours := int(math.Round(r.End.Sub(r.Start).Hours()))
	return fmt.Sprintf("%d_%d_%dh", start, end, hours)
}

// Get returns the exact-key entry if it is still fresh.
func (c *Cache) Get(r Range) ([]cauldronwatch.HistorySnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key(r)]
	if !ok || !c.freshLocked(e) {
		return nil, false
	}
	return e.data, true
}

// GetOverlapping scans for a fresh entry whose window fully contains r and
// returns the subset filtered by timestamp, avoiding a network call.
func (c *Cache) GetOverlapping(r Range) ([]cauldronwatch.HistorySnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if !c.freshLocked(e) {
			continue
		}
		if e.rng.Start.After(r.Start) || e.rng.End.Before(r.End) {
			continue
		}
		startMs, endMs := r.Start.UnixMilli(), r.End.UnixMilli()
		out := make([]cauldronwatch.HistorySnapshot, 0, len(e.data))
		for _, snap := range e.data {
			if snap.Timestamp >= startMs && snap.Timestamp <= endMs {
				out = append(out, snap)
			}
		}
		return out, true
	}
	return nil, false
}

// Set stores a window with the current time as its fetch instant.
func (c *Cache) Set(r Range, data []cauldronwatch.HistorySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(r)] = entry{rng: r, data: data, fetchedAt: c.now()}
}

// FetchDeduplicated runs loader at most once per normalized key at a time:
// concurrent callers for an equivalent range share the single result, and a
// loader failure propagates to every waiter while storing nothing (the next
// call retries).
func (c *Cache) FetchDeduplicated(ctx context.Context, r Range, loader Loader) ([]cauldronwatch.HistorySnapshot, error) {
	key := Key(r)

	c.mu.Lock()
	c.flightKey[key] = struct{}{}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key, func() (any, error) {
		data, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(r, data)
		return data, nil
	})

	c.mu.Lock()
	delete(c.flightKey, key)
	c.mu.Unlock()
	c.flight.Forget(key)

	if err != nil {
		return nil, err
	}
	return v.([]cauldronwatch.HistorySnapshot), nil
}

// Invalidate clears all entries and in-flight markers. Used on manual
// refresh; staleness is otherwise pull-only via TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	for key := range c.flightKey {
		c.flight.Forget(key)
		delete(c.flightKey, key)
	}
}

func (c *Cache) freshLocked(e entry) bool {
	return c.now().Sub(e.fetchedAt) < c.ttl
}
