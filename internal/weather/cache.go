package weather

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

// CachedClient serves repeated (city, state, date) lookups from Redis.
// Cache failures fall through to the wrapped finder.
type CachedClient struct {
	next  RainRiskFinder
	cache *redisclient.JSONCache
	ttl   time.Duration
}

func NewCachedClient(next RainRiskFinder, cache *redisclient.JSONCache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedClient{next: next, cache: cache, ttl: ttl}
}

func cacheKey(city, state, date string) string {
	return fmt.Sprintf("rain:%s:%s:%s",
		strings.ToLower(strings.TrimSpace(city)),
		strings.ToLower(strings.TrimSpace(state)),
		date)
}

func (c *CachedClient) RainRisk(ctx context.Context, city, state, date string) (Risk, error) {
	key := cacheKey(city, state, date)

	var cached Risk
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Printf("weather cache read failed key=%s: %v", key, err)
	}
	if hit {
		return cached, nil
	}

	risk, err := c.next.RainRisk(ctx, city, state, date)
	if err != nil {
		return Risk{}, err
	}

	if err := c.cache.Set(ctx, key, risk, c.ttl); err != nil {
		log.Printf("weather cache write failed key=%s: %v", key, err)
	}
	return risk, nil
}
