package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal 按问题类型和结果统计处理过的任务
	// status: scored, rejected, failed
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planner",
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Total scoring jobs handled by the worker",
	}, []string{"problem_type", "status"})

	ScoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "planner",
		Subsystem: "worker",
		Name:      "score_duration_seconds",
		Help:      "Time spent loading and scoring a problem",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"problem_type"})

	// PropagationVisits 是每次级联重算访问的元素数量
	PropagationVisits = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "planner",
		Subsystem: "shadow",
		Name:      "propagation_visits",
		Help:      "Elements visited per cascading shadow recomputation",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	FeasibleJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planner",
		Subsystem: "worker",
		Name:      "feasible_total",
		Help:      "Scored jobs whose solution has no hard penalty",
	}, []string{"problem_type"})
)

func ObservePropagation(visited int) {
	PropagationVisits.Observe(float64(visited))
}
