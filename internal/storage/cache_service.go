package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vestival/algorand-tracker/internal/config"
	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/models"
)

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyAsset is for immutable ASA parameters
	CacheKeyAsset CacheKeyType = "asset"
	// CacheKeySpotPrice is for USD spot prices
	CacheKeySpotPrice CacheKeyType = "spot"
	// CacheKeySnapshot is for the latest stored snapshot per user
	CacheKeySnapshot CacheKeyType = "snapshot"
)

// CacheService provides typed caching on top of Redis
type CacheService struct {
	redis *RedisCache
	ttls  config.CacheConfig
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttls config.CacheConfig) *CacheService {
	return &CacheService{redis: redis, ttls: ttls}
}

// GenerateCacheKey builds "<type>:<param1>:<param2>...". Algorand addresses are
// case sensitive so parameters are kept as given.
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	return strings.Join(append([]string{string(keyType)}, params...), ":")
}

func (c *CacheService) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, ttl); err != nil {
		return apperrors.NewCacheError("set "+key, err)
	}
	return nil
}

// getJSON decodes a cached value into dest and reports whether the key was present
func (c *CacheService) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewCacheError("get "+key, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// GetAssetInfo returns cached asset parameters
func (c *CacheService) GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, bool, error) {
	var info models.AssetInfo
	ok, err := c.getJSON(ctx, GenerateCacheKey(CacheKeyAsset, assetKey), &info)
	if err != nil || !ok {
		return nil, false, err
	}
	return &info, true, nil
}

// SetAssetInfo caches asset parameters
func (c *CacheService) SetAssetInfo(ctx context.Context, info *models.AssetInfo) error {
	return c.setJSON(ctx, GenerateCacheKey(CacheKeyAsset, info.AssetKey), info, c.ttls.AssetInfoTTL)
}

// GetSpotPrices returns the cached prices among assetKeys and the keys that missed
func (c *CacheService) GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, []string, error) {
	hits := models.PriceMap{}
	var misses []string
	for _, key := range assetKeys {
		raw, err := c.redis.Get(ctx, GenerateCacheKey(CacheKeySpotPrice, key))
		if errors.Is(err, ErrCacheMiss) {
			misses = append(misses, key)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get spot price: %w", err)
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			misses = append(misses, key)
			continue
		}
		hits[key] = price
	}
	return hits, misses, nil
}

// SetSpotPrices caches every price in prices
func (c *CacheService) SetSpotPrices(ctx context.Context, prices models.PriceMap) error {
	for key, price := range prices {
		value := strconv.FormatFloat(price, 'f', -1, 64)
		if err := c.redis.Set(ctx, GenerateCacheKey(CacheKeySpotPrice, key), value, c.ttls.SpotPriceTTL); err != nil {
			return fmt.Errorf("failed to cache spot price: %w", err)
		}
	}
	return nil
}

// GetLatestSnapshot returns the cached latest snapshot for a user
func (c *CacheService) GetLatestSnapshot(ctx context.Context, userID string) (*models.StoredSnapshot, bool, error) {
	var snapshot models.StoredSnapshot
	ok, err := c.getJSON(ctx, GenerateCacheKey(CacheKeySnapshot, userID), &snapshot)
	if err != nil || !ok {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// SetLatestSnapshot caches a user's latest snapshot
func (c *CacheService) SetLatestSnapshot(ctx context.Context, snapshot *models.StoredSnapshot) error {
	return c.setJSON(ctx, GenerateCacheKey(CacheKeySnapshot, snapshot.UserID), snapshot, c.ttls.SnapshotTTL)
}
