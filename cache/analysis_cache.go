package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisCache caches AI portfolio analysis results so repeated requests
// for an unchanged portfolio don't burn model tokens.
type AnalysisCache struct {
	redis *RedisClient
}

// NewAnalysisCache creates a new analysis cache instance
func NewAnalysisCache(redis *RedisClient) *AnalysisCache {
	return &AnalysisCache{
		redis: redis,
	}
}

// Get retrieves a cached analysis for a portfolio.
// Returns the cached text and true if found, empty and false otherwise.
func (c *AnalysisCache) Get(ctx context.Context, portfolioID int64, dataHash string) (string, bool) {
	if c.redis == nil {
		return "", false
	}

	cacheKey := fmt.Sprintf("analysis:portfolio:%d:%s", portfolioID, dataHash)
	var analysis string

	if err := c.redis.Get(ctx, cacheKey, &analysis); err != nil {
		return "", false
	}

	return analysis, true
}

// Set caches an analysis result for a portfolio
func (c *AnalysisCache) Set(ctx context.Context, portfolioID int64, dataHash string, analysis string, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("analysis:portfolio:%d:%s", portfolioID, dataHash)
	return c.redis.Set(ctx, cacheKey, analysis, ttl)
}

// SetCooldown sets a cooldown period for a portfolio to prevent excessive model calls
func (c *AnalysisCache) SetCooldown(ctx context.Context, portfolioID int64, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cooldownKey := fmt.Sprintf("analysis:cooldown:%d", portfolioID)
	return c.redis.Set(ctx, cooldownKey, time.Now().Unix(), ttl)
}

// IsInCooldown checks if a portfolio is in cooldown period
func (c *AnalysisCache) IsInCooldown(ctx context.Context, portfolioID int64) bool {
	if c.redis == nil {
		return false
	}

	cooldownKey := fmt.Sprintf("analysis:cooldown:%d", portfolioID)
	var timestamp int64

	if err := c.redis.Get(ctx, cooldownKey, &timestamp); err != nil {
		return false
	}

	return timestamp > 0
}

// GenerateDataHash creates a hash from portfolio state to detect if holdings changed
func GenerateDataHash(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes for shorter hash
}
