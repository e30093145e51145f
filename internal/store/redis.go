package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradelab/sim-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Saves go to the primary store and refresh the cache; loads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) LoadPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if err == nil {
		var p model.Portfolio
		if json.Unmarshal(data, &p) == nil && Validate(&p) == nil {
			return &p, nil
		}
		// Corrupt or stale-schema cache entry: drop it and re-read.
		s.rdb.Del(ctx, portfolioKey(userID))
	}

	// Cache miss: read from primary.
	p, err := s.primary.LoadPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cachePortfolio(ctx, userID, p)
	return p, nil
}

func (s *CachedStore) SavePortfolio(ctx context.Context, userID string, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, userID, p); err != nil {
		return err
	}
	s.cachePortfolio(ctx, userID, p)
	return nil
}

func (s *CachedStore) cachePortfolio(ctx context.Context, userID string, p *model.Portfolio) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, portfolioKey(userID), data, s.ttl)
	}
}

func portfolioKey(userID string) string { return fmt.Sprintf("portfolio:%s", userID) }
