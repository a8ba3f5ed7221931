package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const rankingKeyPrefix = "ranking:top:"

// InitRedis connects to redis and pings it once.
func InitRedis(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("failed to connect to redis", zap.String("addr", addr), zap.Error(err))
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("connected to redis", zap.String("addr", addr))
	return rdb, nil
}

// RankingCache serves historical rankings from redis and falls through to the
// wrapped store on a miss. Redis failures only cost the cache; they never
// fail a request the wrapped store can answer.
type RankingCache struct {
	Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRankingCache(inner Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RankingCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RankingCache{Store: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func rankingKey(limit int) string {
	return fmt.Sprintf("%s%d", rankingKeyPrefix, limit)
}

func (c *RankingCache) FetchHistoricalRanking(ctx context.Context, limit int) ([]RankingRow, error) {
	limit = clampLimit(limit)
	key := rankingKey(limit)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var rows []RankingRow
		if err := json.Unmarshal([]byte(raw), &rows); err == nil {
			return rows, nil
		}
		c.logger.Warn("discarding undecodable ranking cache entry", zap.String("key", key))
	case err != redis.Nil:
		c.logger.Warn("ranking cache read failed", zap.String("key", key), zap.Error(err))
	}

	rows, err := c.Store.FetchHistoricalRanking(ctx, limit)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return rows, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("ranking cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rows, nil
}

// RecordFinalResults writes through and then drops every cached ranking.
func (c *RankingCache) RecordFinalResults(ctx context.Context, sessionID string, results []FinalResult) error {
	if err := c.Store.RecordFinalResults(ctx, sessionID, results); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *RankingCache) invalidate(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, rankingKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("ranking cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("ranking cache invalidation failed", zap.Error(err))
	}
}
