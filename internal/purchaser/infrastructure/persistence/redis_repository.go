package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/redis/go-redis/v9"
)

const (
	redisInfoKeyPrefix = "entitle:purchaser:"
	redisIdentityKey   = "entitle:app_user_id"
)

// RedisRepository implements domain.CacheRepository with Redis. Entries do
// not expire; staleness is the reconciliation core's concern, not the
// cache's.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a Redis-backed device cache.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// PurchaserInfo returns the cached snapshot for the user, or nil.
func (r *RedisRepository) PurchaserInfo(ctx context.Context, appUserID string) (*domain.PurchaserInfo, error) {
	payload, err := r.client.Get(ctx, redisInfoKeyPrefix+appUserID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var info domain.PurchaserInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SavePurchaserInfo persists the snapshot for the user.
func (r *RedisRepository) SavePurchaserInfo(ctx context.Context, appUserID string, info *domain.PurchaserInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisInfoKeyPrefix+appUserID, payload, 0).Err()
}

// DeletePurchaserInfo removes the snapshot for the user.
func (r *RedisRepository) DeletePurchaserInfo(ctx context.Context, appUserID string) error {
	return r.client.Del(ctx, redisInfoKeyPrefix+appUserID).Err()
}

// AppUserID returns the cached generated user ID, or "".
func (r *RedisRepository) AppUserID(ctx context.Context) (string, error) {
	appUserID, err := r.client.Get(ctx, redisIdentityKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return appUserID, nil
}

// SaveAppUserID persists a generated user ID.
func (r *RedisRepository) SaveAppUserID(ctx context.Context, appUserID string) error {
	return r.client.Set(ctx, redisIdentityKey, appUserID, 0).Err()
}

// DeleteAppUserID removes the cached generated user ID.
func (r *RedisRepository) DeleteAppUserID(ctx context.Context) error {
	return r.client.Del(ctx, redisIdentityKey).Err()
}
