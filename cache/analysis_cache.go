package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"djmix/logger"
	"djmix/model"

	"github.com/go-redis/redis/v8"
)

const analysisKeyPrefix = "djmix:analysis:"

// AnalysisCache keeps tempo and structure results in Redis so a track that has
// been analysed once is not analysed again.
type AnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnalysisCache returns a cache on client. A nil client makes every lookup a miss.
func NewAnalysisCache(client *redis.Client, ttl time.Duration) *AnalysisCache {
	return &AnalysisCache{client: client, ttl: ttl}
}

func analysisKey(key string) string {
	return analysisKeyPrefix + key
}

// Load returns nil, nil on a miss.
func (c *AnalysisCache) Load(ctx context.Context, key string) (*model.TrackAnalysis, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, analysisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get analysis %s: %w", key, err)
	}

	var a model.TrackAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		logger.Warn("discarding unreadable analysis entry", logger.String("key", key), logger.ErrorField(err))
		c.client.Del(ctx, analysisKey(key))
		return nil, nil
	}
	return &a, nil
}

// Store writes a with the configured TTL.
func (c *AnalysisCache) Store(ctx context.Context, key string, a *model.TrackAnalysis) error {
	if c == nil || c.client == nil || a == nil {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := c.client.Set(ctx, analysisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set analysis %s: %w", key, err)
	}
	logger.Debug("analysis cached",
		logger.String("key", key),
		logger.Int("size", len(data)),
		logger.Duration("ttl", c.ttl))
	return nil
}
