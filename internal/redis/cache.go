package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridesvc/internal/domain"
)

// CacheStore handles caching of remote profiles and promo codes in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	DriverCacheTTL = 30 * time.Second // availability and car can change
	PromoCacheTTL  = 5 * time.Minute
)

// Key prefixes
const (
	driverCachePrefix = "cache:driver:"
	promoCachePrefix  = "cache:promo:"
)

func driverKey(id int64) string {
	return driverCachePrefix + strconv.FormatInt(id, 10)
}

// GetDriversBatch retrieves multiple driver profiles using a pipeline.
// Returns the cached drivers keyed by id and the ids that were not cached.
func (s *CacheStore) GetDriversBatch(ctx context.Context, driverIDs []int64) (map[int64]*domain.Driver, []int64, error) {
	result := make(map[int64]*domain.Driver, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(driverIDs))
	for i, id := range driverIDs {
		cmds[i] = pipe.Get(ctx, driverKey(id))
	}

	// redis.Nil is reported per command for missing keys.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	var missing []int64
	for i, cmd := range cmds {
		id := driverIDs[i]
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}

		var driver domain.Driver
		if err := json.Unmarshal(data, &driver); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = &driver
	}

	return result, missing, nil
}

// SetDriversBatch stores multiple driver profiles using a pipeline.
func (s *CacheStore) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	if len(drivers) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, driver := range drivers {
		data, err := json.Marshal(driver)
		if err != nil {
			return err
		}
		pipe.Set(ctx, driverKey(driver.ID), data, DriverCacheTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateDriver removes a driver profile from cache.
func (s *CacheStore) InvalidateDriver(ctx context.Context, driverID int64) error {
	return s.client.Del(ctx, driverKey(driverID)).Err()
}

// GetPromoCode retrieves a promo code from cache. Returns nil on a miss.
func (s *CacheStore) GetPromoCode(ctx context.Context, name string) (*domain.PromoCode, error) {
	data, err := s.client.Get(ctx, promoCachePrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var promo domain.PromoCode
	if err := json.Unmarshal(data, &promo); err != nil {
		return nil, err
	}
	return &promo, nil
}

// SetPromoCode stores a promo code in cache.
func (s *CacheStore) SetPromoCode(ctx context.Context, promo *domain.PromoCode) error {
	data, err := json.Marshal(promo)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, promoCachePrefix+promo.Name, data, PromoCacheTTL).Err()
}
