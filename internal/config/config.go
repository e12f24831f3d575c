package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Scoring     struct {
		PropagationMode string   `env:"PROPAGATION_MODE" envDefault:"memoized"`
		RoomStability   []string `env:"ROOM_STABILITY_ATTENDANCES" envDefault:"required" envSeparator:","`
		Assertions      bool     `env:"ASSERTIONS" envDefault:"false"`
		Timeout         int      `env:"TIMEOUT" envDefault:"30"`
	} `envPrefix:"SCORING_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		Queue          string `env:"QUEUE" envDefault:"scoring_queue"`
		ResultQueue    string `env:"RESULT_QUEUE" envDefault:"scoring_results"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
		Prefetch       int    `env:"PREFETCH" envDefault:"1"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
		SummaryTTL          int    `env:"SUMMARY_TTL" envDefault:"86400"` // 1 天
	} `envPrefix:"REDIS_"`
	Metrics struct {
		Addr string `env:"ADDR" envDefault:":9090"`
	} `envPrefix:"METRICS_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, firstError(err)
	}

	return cfg, nil
}

// LoadStorageConfig 只读取数据库和 redis 部分，供不需要连接 RabbitMQ 的命令行工具使用
func LoadStorageConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(&cfg.Database, env.Options{Prefix: "DATABASE_"}); err != nil {
		return nil, firstError(err)
	}
	if err := env.ParseWithOptions(&cfg.Redis, env.Options{Prefix: "REDIS_"}); err != nil {
		return nil, firstError(err)
	}

	return cfg, nil
}

func firstError(err error) error {
	aggErr := env.AggregateError{}
	if ok := errors.As(err, &aggErr); ok {
		// 只返回第一个错误使得日志更清晰
		return aggErr.Errors[0]
	}
	return err
}
