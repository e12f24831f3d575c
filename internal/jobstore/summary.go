package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
)

const summaryKeyPrefix = "planner:job:"

func summaryKey(jobID string) string {
	return summaryKeyPrefix + jobID
}

// RedisSummaryStore 在 redis 中缓存每个任务最近一次的评分结果
type RedisSummaryStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSummaryStore(rdb redis.Cmdable, ttl time.Duration) *RedisSummaryStore {
	return &RedisSummaryStore{rdb: rdb, ttl: ttl}
}

func (s *RedisSummaryStore) Put(ctx context.Context, summary domain.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, summaryKey(summary.JobID), data, s.ttl).Err()
}

func (s *RedisSummaryStore) Get(ctx context.Context, jobID string) (domain.Summary, error) {
	var summary domain.Summary

	data, err := s.rdb.Get(ctx, summaryKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return summary, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return summary, err
	}

	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *RedisSummaryStore) Delete(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, summaryKey(jobID)).Err()
}
