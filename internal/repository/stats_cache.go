package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// AttemptStats 测验答题统计，百分比相对测验当前总分取整
type AttemptStats struct {
	TotalAttempts     int64    `json:"totalAttempts"`
	CompletedAttempts int64    `json:"completedAttempts"`
	BestScore         *int     `json:"bestScore"`
	AverageScore      *float64 `json:"averageScore"`
	BestPercentage    *float64 `json:"bestPercentage"`
	AveragePercentage *float64 `json:"averagePercentage"`
}

// StatsCache 按测验存一个 hash，field 为查看者 ID（作者视角为 0）。
// Redis 为 nil 时所有操作都是空操作。
type StatsCache struct {
	Redis *redis.Client
	TTL   time.Duration
	ctx   context.Context
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{
		Redis: rdb,
		TTL:   ttl,
		ctx:   context.Background(),
	}
}

func statsKey(quizID uint) string {
	return fmt.Sprintf("quiz:stats:%d", quizID)
}

func (c *StatsCache) Get(quizID, viewerID uint) (*AttemptStats, bool) {
	if c == nil || c.Redis == nil {
		return nil, false
	}
	raw, err := c.Redis.HGet(c.ctx, statsKey(quizID), strconv.FormatUint(uint64(viewerID), 10)).Bytes()
	if err != nil {
		return nil, false
	}
	var stats AttemptStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (c *StatsCache) Set(quizID, viewerID uint, stats *AttemptStats) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	key := statsKey(quizID)
	pipe := c.Redis.TxPipeline()
	pipe.HSet(c.ctx, key, strconv.FormatUint(uint64(viewerID), 10), raw)
	if c.TTL > 0 {
		pipe.Expire(c.ctx, key, c.TTL)
	}
	_, err = pipe.Exec(c.ctx)
	return err
}

// Invalidate 答题开始/结束/删除、题目分值变化时清除该测验的全部统计
func (c *StatsCache) Invalidate(quizID uint) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis.Del(c.ctx, statsKey(quizID)).Err()
}

// InvalidateAll 总分批量修复后使用
func (c *StatsCache) InvalidateAll() error {
	if c == nil || c.Redis == nil {
		return nil
	}
	iter := c.Redis.Scan(c.ctx, 0, "quiz:stats:*", 100).Iterator()
	var keys []string
	for iter.Next(c.ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Redis.Del(c.ctx, keys...).Err()
}
