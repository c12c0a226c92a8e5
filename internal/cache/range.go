package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kjannette/finagg-backend/internal/models"
)

const DefaultSize = 256

// Store is the price store the cache sits in front of. Implemented by
// repository.PriceRepo.
type Store interface {
	QueryRange(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error)
	CountRange(ctx context.Context, company string, start, end time.Time) (int, error)
}

// Observer is notified of lookups. Implemented by metrics.Collector.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// RangeCache memoizes QueryRange results keyed by (company, start, end).
// Entries never expire on their own; Purge must be called after every import
// so a cached range never hides newly committed rows.
type RangeCache struct {
	next Store
	lru  *lru.Cache[string, []models.PricePoint]
	obs  Observer

	// gen is bumped by Purge. A miss only stores its result if no purge
	// happened while it was reading.
	mu  sync.Mutex
	gen uint64
}

func NewRangeCache(next Store, size int, obs Observer) (*RangeCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []models.PricePoint](size)
	if err != nil {
		return nil, fmt.Errorf("range cache: %w", err)
	}
	return &RangeCache{next: next, lru: c, obs: obs}, nil
}

func key(company string, start, end time.Time) string {
	return company + "|" + start.Format(models.DayLayout) + "|" + end.Format(models.DayLayout)
}

func (c *RangeCache) QueryRange(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error) {
	k := key(company, start, end)
	if points, ok := c.lru.Get(k); ok {
		if c.obs != nil {
			c.obs.CacheHit()
		}
		return clonePoints(points), nil
	}
	if c.obs != nil {
		c.obs.CacheMiss()
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	points, err := c.next.QueryRange(ctx, company, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.lru.Add(k, clonePoints(points))
	}
	c.mu.Unlock()
	return points, nil
}

// CountRange answers from a cached range when there is one and asks the store
// otherwise. It does not touch recency or the hit/miss counters.
func (c *RangeCache) CountRange(ctx context.Context, company string, start, end time.Time) (int, error) {
	if points, ok := c.lru.Peek(key(company, start, end)); ok {
		return len(points), nil
	}
	return c.next.CountRange(ctx, company, start, end)
}

// Purge drops every cached range.
func (c *RangeCache) Purge() {
	c.mu.Lock()
	c.gen++
	c.lru.Purge()
	c.mu.Unlock()
}

func (c *RangeCache) Len() int { return c.lru.Len() }

// clonePoints copies points including the values behind the numeric
// pointers, so callers and the cache never share memory.
func clonePoints(points []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(points))
	for i, p := range points {
		p.Open = cloneFloat(p.Open)
		p.High = cloneFloat(p.High)
		p.Low = cloneFloat(p.Low)
		p.Close = cloneFloat(p.Close)
		p.Volume = cloneFloat(p.Volume)
		out[i] = p
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
