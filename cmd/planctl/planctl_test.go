package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/jobstore"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

const routingProblem = `{
	"vehicles": [
		{"id": "v1", "capacity": 10, "homeLocation": [0, 0], "departureTime": "2024-01-01T08:00:00", "visits": ["a"]}
	],
	"visits": [
		{"id": "a", "location": [0, 0.1], "demand": 1, "minStartTime": "2024-01-01T08:00:00", "maxEndTime": "2024-01-01T18:00:00", "serviceDuration": 600}
	]
}`

func writeProblem(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	path := writeProblem(t, routingProblem)

	out, err := execute(t, "score", "--type", "routing", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0hard/-800soft (feasible: true)")
	assert.Contains(t, out, "Minimize travel time")

	out, err = execute(t, "score", "--type", "routing", "--mode", "full", "--explain", path)
	require.NoError(t, err)
	var summary domain.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "routing", summary.ProblemType)
	assert.Len(t, summary.Constraints, 3)
}

func TestScoreCommandErrors(t *testing.T) {
	path := writeProblem(t, routingProblem)

	_, err := execute(t, "score", path)
	assert.Error(t, err, "缺少 --type")

	_, err = execute(t, "score", "--type", "knapsack", path)
	assert.ErrorIs(t, err, domain.ErrUnknownProblemType)

	_, err = execute(t, "score", "--type", "routing", "--mode", "lazy", path)
	assert.Error(t, err)

	_, err = execute(t, "score", "--type", "routing", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildMessage(t *testing.T) {
	body, jobID, err := buildMessage(publishFlags{problemType: "routing"}, []byte(routingProblem))
	require.NoError(t, err)
	_, err = uuid.Parse(jobID)
	assert.NoError(t, err)

	var msg domain.ScoringMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, jobID, msg.JobID)
	assert.Equal(t, "routing", msg.ProblemType)
	assert.JSONEq(t, routingProblem, string(msg.Problem))

	_, jobID, err = buildMessage(publishFlags{problemType: "routing", jobID: "fixed"}, []byte(routingProblem))
	require.NoError(t, err)
	assert.Equal(t, "fixed", jobID)

	_, _, err = buildMessage(publishFlags{problemType: "routing"}, []byte("{"))
	assert.ErrorIs(t, err, domain.ErrMalformedProblem)
}

func TestPublishRequiresDSN(t *testing.T) {
	t.Setenv("RABBITMQ_DSN", "")
	path := writeProblem(t, routingProblem)

	_, err := execute(t, "publish", "--type", "routing", "--dsn", "", path)
	assert.Error(t, err)
}

type fakeResultStore struct {
	results map[string]*domain.ScoringResult
	reads   int
}

func (s *fakeResultStore) GetScoringResultByJobID(_ context.Context, jobID string) (*domain.ScoringResult, error) {
	s.reads++
	result, ok := s.results[jobID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return result, nil
}

func (s *fakeResultStore) DeleteScoringResult(_ context.Context, jobID string) error {
	if _, ok := s.results[jobID]; !ok {
		return repository.ErrRecordNotFound
	}
	delete(s.results, jobID)
	return nil
}

func newResultCache(t *testing.T) *jobstore.RedisSummaryStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return jobstore.NewRedisSummaryStore(rdb, time.Hour)
}

func resultSummary(jobID string) domain.Summary {
	return domain.Summary{
		JobID:       jobID,
		ProblemType: "routing",
		Score:       score.HardSoftOf(0, -800),
		Feasible:    true,
	}
}

func TestFindResultPrefersCache(t *testing.T) {
	ctx := context.Background()
	cache := newResultCache(t)
	store := &fakeResultStore{results: map[string]*domain.ScoringResult{}}
	require.NoError(t, cache.Put(ctx, resultSummary("job-1")))

	summary, err := findResult(ctx, cache, store, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", summary.JobID)
	assert.Equal(t, "0hard/-800soft", summary.Score.String())
	assert.Zero(t, store.reads)
}

func TestFindResultFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	cache := newResultCache(t)
	store := &fakeResultStore{results: map[string]*domain.ScoringResult{
		"job-2": {ID: 7, Summary: resultSummary("job-2")},
	}}

	summary, err := findResult(ctx, cache, store, "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", summary.JobID)
	assert.Equal(t, 1, store.reads)

	_, err = findResult(ctx, cache, store, "missing")
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

func TestDeleteResultClearsStoreAndCache(t *testing.T) {
	ctx := context.Background()
	cache := newResultCache(t)
	store := &fakeResultStore{results: map[string]*domain.ScoringResult{
		"job-3": {ID: 9, Summary: resultSummary("job-3")},
	}}
	require.NoError(t, cache.Put(ctx, resultSummary("job-3")))

	require.NoError(t, deleteResult(ctx, cache, store, "job-3"))
	_, err := cache.Get(ctx, "job-3")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	_, err = findResult(ctx, cache, store, "job-3")
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)

	// 数据库中已经没有记录时仍然清理缓存
	require.NoError(t, cache.Put(ctx, resultSummary("job-3")))
	err = deleteResult(ctx, cache, store, "job-3")
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
	_, err = cache.Get(ctx, "job-3")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestResultCommandRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	require.NoError(t, os.Unsetenv("DATABASE_DSN"))

	_, err := execute(t, "result", "job-1")
	assert.Error(t, err)

	_, err = execute(t, "result")
	assert.Error(t, err, "缺少任务 ID")
}
