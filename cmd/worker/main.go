package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/jobstore"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/worker"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/meeting"
	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/rostering"
	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/routing"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库
	 **********************************************/
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(pingCtx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * 连接 redis
	 **********************************************/
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer rdb.Close()

	redisCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
	defer cancel()
	if err := rdb.Ping(redisCtx).Err(); err != nil {
		logger.Error("无法连接到 redis", "error", err)
		return
	}

	summaries := jobstore.NewRedisSummaryStore(rdb, time.Duration(cfg.Redis.SummaryTTL)*time.Second)

	/**********************************************
	 * 创建评分处理器
	 **********************************************/
	processor, err := worker.NewProcessor(cfg, logger, jobstore.NewMemoryStore(), summaries, repo)
	if err != nil {
		logger.Error("无法创建评分处理器", "error", err)
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", "error", err)
		return
	}
	defer conn.Close()

	// 创建通道
	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法创建通道", "error", err)
		return
	}
	defer ch.Close()

	// 声明队列
	for _, name := range []string{cfg.RabbitMQ.Queue, cfg.RabbitMQ.ResultQueue} {
		if _, err := ch.QueueDeclare(
			name,  // 队列名称
			true,  // 是否持久化
			false, // 是否自动删除，设置为 false 可以避免没有消费者的时候自动删除队列
			false, // 是否独占，即是否允许多个消费者访问这个队列
			false, // 是否不等待，设置为 false，即等待 RabbitMQ 确认队列是否创建成功
			nil,   // 额外参数
		); err != nil {
			logger.Error("无法声明队列", "queue", name, "error", err)
			return
		}
	}

	// 评分可能比较耗时，限制每个 worker 同时持有的未确认消息数量
	if err := ch.Qos(cfg.RabbitMQ.Prefetch, 0, false); err != nil {
		logger.Error("无法设置预取数量", "error", err)
		return
	}

	// 消费消息
	msgs, err := ch.Consume(
		cfg.RabbitMQ.Queue, // 队列
		"",                 // 消费者标识，设置为空字符串，表示由 RabbitMQ 自动分配
		false,              // 是否自动确认消息
		false,              // 是否独占队列
		false,              // 是否禁止消费者接受自己发送的消息，必须设置为 false，因为 RabbitMQ 不支持这个参数
		false,              // 是否不等待，等待 RabbitMQ 响应
		nil,                // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", "error", err)
		return
	}

	/**********************************************
	 * 启动指标服务器
	 **********************************************/
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	go func() {
		logger.Info("正在启动指标服务器...", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("无法启动指标服务器", "error", err)
		}
	}()

	// 监听 CTRL+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 用于关闭 goroutine 的上下文
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Error("消息通道已关闭")
					return
				}
				logger.Info("收到消息", "messageID", msg.MessageId, "size", len(msg.Body))

				summary, err := processor.Process(ctx, msg.Body)
				switch {
				case errors.Is(err, worker.ErrRejected):
					logger.Error("消息无法处理", "error", err)
					_ = msg.Nack(false, false)
					continue
				case err != nil:
					logger.Error("评分失败", "error", err)
					_ = msg.Nack(false, true) // 将消息重新入队
					continue
				}

				// 发布评分结果
				body, err := json.Marshal(summary)
				if err != nil {
					logger.Error("评分结果序列化失败", "error", err)
					_ = msg.Nack(false, false)
					continue
				}
				publishCtx, cancelPublish := context.WithTimeout(ctx, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
				err = ch.PublishWithContext(
					publishCtx,
					"",
					cfg.RabbitMQ.ResultQueue,
					true,
					false,
					amqp.Publishing{
						ContentType:   "application/json",
						CorrelationId: summary.JobID,
						Body:          body,
					},
				)
				cancelPublish()
				if err != nil {
					logger.Error("无法发布评分结果", "error", err)
					_ = msg.Nack(false, true)
					continue
				}

				// 确认消息
				_ = msg.Ack(false)
			}
		}
	}()

	// 等待 CTRL+C 信号
	logger.Info("等待消息...（按 CTRL+C 退出）", "queue", cfg.RabbitMQ.Queue)
	<-sigChan

	// 优雅退出
	logger.Info("正在关闭 scoring worker...")
	cancel()
	wg.Wait() // 等待所有 goroutine 完成

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭指标服务器失败", "error", err)
	}
	logger.Info("scoring worker 已成功关闭")
}
