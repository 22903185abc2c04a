package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache memoizes search results per query for a limited time
type Cache struct {
	provider Provider
	lru      *expirable.LRU[string, []Result]

	// OnLookup, when set, is told whether each lookup hit
	OnLookup func(hit bool)
}

func NewCache(provider Provider, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 128
	}
	return &Cache{
		provider: provider,
		lru:      expirable.NewLRU[string, []Result](size, nil, ttl),
	}
}

func (c *Cache) Search(ctx context.Context, query string, max int) ([]Result, error) {
	key := fmt.Sprintf("%d\x00%s", max, query)
	if results, ok := c.lru.Get(key); ok {
		c.observe(true)
		return results, nil
	}
	c.observe(false)

	results, err := c.provider.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, results)
	return results, nil
}

func (c *Cache) observe(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}
