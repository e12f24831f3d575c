package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/meeting"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/jobstore"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/validation"
)

// ErrRejected 表示消息本身有问题，重新投递也不会成功
var ErrRejected = errors.New("消息被拒绝")

type SummaryCache interface {
	Put(ctx context.Context, summary domain.Summary) error
}

type ResultRepository interface {
	InsertScoringResult(ctx context.Context, result *domain.ScoringResult) error
}

// Processor 加载并评分队列中的问题
type Processor struct {
	logger    *slog.Logger
	options   domain.Options
	timeout   time.Duration
	validator *validation.Validator
	jobs      jobstore.Store
	cache     SummaryCache
	repo      ResultRepository
}

// OptionsFromConfig 把配置转换为加载选项，配置错误在启动时就会暴露
func OptionsFromConfig(cfg *config.Config) (domain.Options, error) {
	opts := domain.DefaultOptions()

	mode, err := shadow.ParseMode(cfg.Scoring.PropagationMode)
	if err != nil {
		return opts, err
	}
	for _, name := range cfg.Scoring.RoomStability {
		if _, err := meeting.ParseAttendanceKind(name); err != nil {
			return opts, err
		}
	}

	opts.PropagationMode = mode
	opts.RoomStability = cfg.Scoring.RoomStability
	opts.Assertions = cfg.Scoring.Assertions
	opts.ObservePropagation = metrics.ObservePropagation
	return opts, nil
}

func NewProcessor(cfg *config.Config, logger *slog.Logger, jobs jobstore.Store, cache SummaryCache, repo ResultRepository) (*Processor, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	v, err := validation.New()
	if err != nil {
		return nil, err
	}

	return &Processor{
		logger:    logger,
		options:   opts,
		timeout:   time.Duration(cfg.Scoring.Timeout) * time.Second,
		validator: v,
		jobs:      jobs,
		cache:     cache,
		repo:      repo,
	}, nil
}

func isRejected(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, domain.ErrMalformedProblem) ||
		errors.Is(err, domain.ErrUnresolvedReference) ||
		errors.Is(err, domain.ErrUnknownProblemType) ||
		errors.Is(err, validation.ErrInvalid) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr)
}

func reject(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// Process 处理一条消息，返回 ErrRejected 时消息不应重新入队
func (p *Processor) Process(ctx context.Context, body []byte) (domain.Summary, error) {
	var msg domain.ScoringMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.JobsTotal.WithLabelValues("unknown", "rejected").Inc()
		return domain.Summary{}, reject(err)
	}
	if err := p.validator.Struct(msg); err != nil {
		metrics.JobsTotal.WithLabelValues("unknown", "rejected").Inc()
		return domain.Summary{}, reject(err)
	}

	logger := p.logger.With("jobID", msg.JobID, "problemType", msg.ProblemType)

	start := time.Now()
	d, err := domain.Load(msg.ProblemType, msg.Problem, p.options)
	if err != nil {
		if isRejected(err) {
			metrics.JobsTotal.WithLabelValues(msg.ProblemType, "rejected").Inc()
			return domain.Summary{}, reject(err)
		}
		metrics.JobsTotal.WithLabelValues(msg.ProblemType, "failed").Inc()
		return domain.Summary{}, err
	}
	summary := domain.Summarize(msg.JobID, msg.ProblemType, d)
	metrics.ScoreDuration.WithLabelValues(msg.ProblemType).Observe(time.Since(start).Seconds())
	logger.Info("评分完成", "score", summary.Score.String(), "feasible", summary.Feasible, "duration", time.Since(start))

	if err := p.keep(msg.JobID, d); err != nil {
		metrics.JobsTotal.WithLabelValues(msg.ProblemType, "failed").Inc()
		return domain.Summary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.cache.Put(ctx, summary); err != nil {
		// 缓存只是加速查询，失败时不影响结果的持久化
		logger.Warn("无法缓存评分结果", "error", err)
	}
	if err := p.repo.InsertScoringResult(ctx, &domain.ScoringResult{Summary: summary}); err != nil {
		metrics.JobsTotal.WithLabelValues(msg.ProblemType, "failed").Inc()
		return domain.Summary{}, err
	}

	metrics.JobsTotal.WithLabelValues(msg.ProblemType, "scored").Inc()
	if summary.Feasible {
		metrics.FeasibleJobs.WithLabelValues(msg.ProblemType).Inc()
	}
	return summary, nil
}

// keep 保存任务的 Director，重复投递的任务会替换之前的 Director
func (p *Processor) keep(jobID string, d *director.Director) error {
	err := p.jobs.Put(jobID, d)
	if !errors.Is(err, jobstore.ErrExists) {
		return err
	}
	if _, err := p.jobs.Checkout(jobID); err != nil {
		return err
	}
	return p.jobs.Release(jobID, d)
}
