package redis

import (
	"context"
	"time"

	"ridesvc/internal/domain"
)

// DriverCacheInterface defines the driver profile cache used by the read path.
type DriverCacheInterface interface {
	GetDriversBatch(ctx context.Context, driverIDs []int64) (map[int64]*domain.Driver, []int64, error)
	SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error
	InvalidateDriver(ctx context.Context, driverID int64) error
}

// PromoCacheInterface defines the promo code cache used by pricing.
type PromoCacheInterface interface {
	GetPromoCode(ctx context.Context, name string) (*domain.PromoCode, error)
	SetPromoCode(ctx context.Context, promo *domain.PromoCode) error
}

// LockStoreInterface defines the interface for distributed locking.
// Locks are reentrant for the same owner.
type LockStoreInterface interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Ensure concrete types implement interfaces.
var (
	_ DriverCacheInterface = (*CacheStore)(nil)
	_ PromoCacheInterface  = (*CacheStore)(nil)
	_ LockStoreInterface   = (*LockStore)(nil)
)

// IdempotencyStoreInterface defines the storage behind the idempotency middleware.
type IdempotencyStoreInterface interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key string, response *StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

var _ IdempotencyStoreInterface = (*IdempotencyStore)(nil)
