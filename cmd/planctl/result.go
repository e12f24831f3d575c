package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/jobstore"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// resultCache 是 worker 写入 redis 的评分摘要
type resultCache interface {
	Get(ctx context.Context, jobID string) (domain.Summary, error)
	Delete(ctx context.Context, jobID string) error
}

// resultStore 是持久化到数据库的评分结果
type resultStore interface {
	GetScoringResultByJobID(ctx context.Context, jobID string) (*domain.ScoringResult, error)
	DeleteScoringResult(ctx context.Context, jobID string) error
}

func newResultCmd() *cobra.Command {
	var remove bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "查询任务的评分结果，连接信息从 DATABASE_* 与 REDIS_* 环境变量读取",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorageConfig()
			if err != nil {
				return err
			}

			dbpool, err := sql.Open("pgx", cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer dbpool.Close()

			rdb := redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
				Password: cfg.Redis.Password,
				DB:       0,
			})
			defer rdb.Close()

			cache := jobstore.NewRedisSummaryStore(rdb, time.Duration(cfg.Redis.SummaryTTL)*time.Second)
			store := repository.NewRepository(cfg, dbpool)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			jobID := args[0]
			if remove {
				if err := deleteResult(ctx, cache, store, jobID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				return nil
			}

			summary, err := findResult(ctx, cache, store, jobID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "删除数据库中的结果以及 redis 缓存")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "查询超时时间")
	return cmd
}

// findResult 先读 redis 缓存，缓存过期或不可用时回退到数据库
func findResult(ctx context.Context, cache resultCache, store resultStore, jobID string) (domain.Summary, error) {
	summary, err := cache.Get(ctx, jobID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, jobstore.ErrNotFound) {
		slog.Warn("无法读取评分缓存，改为查询数据库", "jobID", jobID, "error", err)
	}

	result, err := store.GetScoringResultByJobID(ctx, jobID)
	if err != nil {
		return domain.Summary{}, err
	}
	return result.Summary, nil
}

// deleteResult 即使数据库中没有记录也会清理缓存
func deleteResult(ctx context.Context, cache resultCache, store resultStore, jobID string) error {
	storeErr := store.DeleteScoringResult(ctx, jobID)
	cacheErr := cache.Delete(ctx, jobID)
	return errors.Join(storeErr, cacheErr)
}
