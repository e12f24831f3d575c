package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/jobstore"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"

	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/routing"
)

type fakeCache struct {
	summaries map[string]domain.Summary
	err       error
}

func (c *fakeCache) Put(_ context.Context, s domain.Summary) error {
	if c.err != nil {
		return c.err
	}
	c.summaries[s.JobID] = s
	return nil
}

type fakeRepo struct {
	results []*domain.ScoringResult
	err     error
}

func (r *fakeRepo) InsertScoringResult(_ context.Context, result *domain.ScoringResult) error {
	if r.err != nil {
		return r.err
	}
	result.ID = int64(len(r.results) + 1)
	r.results = append(r.results, result)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scoring.PropagationMode = "memoized"
	cfg.Scoring.RoomStability = []string{"required"}
	cfg.Scoring.Assertions = true
	cfg.Scoring.Timeout = 5
	return cfg
}

type harness struct {
	p     *Processor
	jobs  *jobstore.MemoryStore
	cache *fakeCache
	repo  *fakeRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		jobs:  jobstore.NewMemoryStore(),
		cache: &fakeCache{summaries: make(map[string]domain.Summary)},
		repo:  &fakeRepo{},
	}
	var err error
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.p, err = NewProcessor(testConfig(), logger, h.jobs, h.cache, h.repo)
	require.NoError(t, err)
	return h
}

const routingProblem = `{
	"vehicles": [
		{"id": "v1", "capacity": 1, "homeLocation": [0, 0], "departureTime": "2024-01-01T08:00:00", "visits": ["a", "b"]}
	],
	"visits": [
		{"id": "a", "location": [0, 0.1], "demand": 1, "minStartTime": "2024-01-01T08:00:00", "maxEndTime": "2024-01-01T18:00:00", "serviceDuration": 1200},
		{"id": "b", "location": [0, 0.2], "demand": 1, "minStartTime": "2024-01-01T08:00:00", "maxEndTime": "2024-01-01T18:00:00", "serviceDuration": 600}
	]
}`

func message(t *testing.T, jobID, problemType, problem string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.ScoringMessage{
		JobID:       jobID,
		ProblemType: problemType,
		Problem:     json.RawMessage(problem),
	})
	require.NoError(t, err)
	return body
}

func TestProcessScoresAndPersists(t *testing.T) {
	h := newHarness(t)

	summary, err := h.p.Process(context.Background(), message(t, "job-1", "routing", routingProblem))
	require.NoError(t, err)

	assert.Equal(t, "-1hard/-1600soft", summary.Score.String())
	assert.False(t, summary.Feasible)
	assert.Equal(t, summary, h.cache.summaries["job-1"])
	require.Len(t, h.repo.results, 1)
	assert.Equal(t, summary, h.repo.results[0].Summary)
	assert.Equal(t, []string{"job-1"}, h.jobs.IDs())

	d, err := h.jobs.Checkout("job-1")
	require.NoError(t, err)
	assert.Equal(t, summary.Score, d.RecomputeScore())
	require.NoError(t, h.jobs.Release("job-1", d))
}

func TestProcessRedeliveryReplacesDirector(t *testing.T) {
	h := newHarness(t)
	body := message(t, "job-1", "routing", routingProblem)

	_, err := h.p.Process(context.Background(), body)
	require.NoError(t, err)
	first, err := h.jobs.Checkout("job-1")
	require.NoError(t, err)

	// 仍被持有时重复投递需要稍后重试
	_, err = h.p.Process(context.Background(), body)
	require.ErrorIs(t, err, jobstore.ErrCheckedOut)
	assert.NotErrorIs(t, err, ErrRejected)

	require.NoError(t, h.jobs.Release("job-1", first))
	_, err = h.p.Process(context.Background(), body)
	require.NoError(t, err)

	second, err := h.jobs.Checkout("job-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestProcessRejectsBadMessages(t *testing.T) {
	for name, body := range map[string][]byte{
		"不是 JSON":  []byte("{"),
		"缺少任务 ID":  []byte(`{"problemType": "routing", "problem": {}}`),
		"未知问题类型":   message(t, "job", "knapsack", `{}`),
		"问题数据格式错误": message(t, "job", "routing", `{"vehicles": "many"}`),
		"引用不存在":    message(t, "job", "routing", `{"vehicles": [{"id": "v", "homeLocation": [0, 0], "departureTime": "2024-01-01T08:00:00", "visits": ["x"]}]}`),
	} {
		h := newHarness(t)
		_, err := h.p.Process(context.Background(), body)
		assert.ErrorIs(t, err, ErrRejected, name)
		assert.Empty(t, h.repo.results, name)
		assert.Empty(t, h.jobs.IDs(), name)
	}
}

func TestProcessInfrastructureFailures(t *testing.T) {
	h := newHarness(t)
	h.cache.err = errors.New("redis down")

	summary, err := h.p.Process(context.Background(), message(t, "job-1", "routing", routingProblem))
	require.NoError(t, err, "缓存失败不影响持久化")
	assert.Len(t, h.repo.results, 1)
	assert.Equal(t, "-1hard/-1600soft", summary.Score.String())

	h = newHarness(t)
	h.repo.err = errors.New("connection refused")
	_, err = h.p.Process(context.Background(), message(t, "job-2", "routing", routingProblem))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.PropagationMode = "full"
	cfg.Scoring.RoomStability = []string{"required", "preferred"}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, shadow.Full, opts.PropagationMode)
	assert.Equal(t, []string{"required", "preferred"}, opts.RoomStability)
	assert.True(t, opts.Assertions)
	assert.NotNil(t, opts.ObservePropagation)

	cfg.Scoring.PropagationMode = "lazy"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)

	cfg.Scoring.PropagationMode = "full"
	cfg.Scoring.RoomStability = []string{"optional"}
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
