package director

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/graph"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

type worker struct {
	name string
	load int // 影子属性：分配到的任务总时长
}

type task struct {
	id     string
	start  int64
	end    int64
	worker *worker
}

func (t *task) IsAssigned() bool   { return t.worker != nil }
func (t *task) PlanningID() string { return t.id }

type fixture struct {
	workers []*worker
	tasks   []*task
	link    *graph.SingleLink[*task, *worker]
	d       *Director
}

func taskAt(t constraint.Tuple, i int) *task { return constraint.Arg[*task](t, i) }

func constraints() []*constraint.Constraint {
	workerOf := func(t constraint.Tuple) *worker { return taskAt(t, 0).worker }
	start := func(t constraint.Tuple) int64 { return taskAt(t, 0).start }
	end := func(t constraint.Tuple) int64 { return taskAt(t, 0).end }

	return []*constraint.Constraint{
		constraint.ForEachUniquePair("tasks", constraint.EqualBy(workerOf), constraint.OverlappingBy(start, end)).
			PenalizeBy("Overlapping task", score.HardSoftOf(1, 0), func(t constraint.Tuple) int64 {
				a, b := taskAt(t, 0), taskAt(t, 1)
				return min(a.end, b.end) - max(a.start, b.start)
			}),
		constraint.ForEachIncludingUnassigned("tasks").
			Filter(func(t constraint.Tuple) bool { return taskAt(t, 0).worker == nil }).
			Penalize("Unassigned task", score.HardSoftOf(0, 1)),
		constraint.ForEach("workers").
			PenalizeBy("Balanced load", score.HardSoftOf(0, 1), func(t constraint.Tuple) int64 {
				load := int64(constraint.Arg[*worker](t, 0).load)
				return load * load
			}),
	}
}

func newFixture(t *testing.T, rng *rand.Rand, extra ...*constraint.Constraint) *fixture {
	f := &fixture{}
	for i := 0; i < 3; i++ {
		f.workers = append(f.workers, &worker{name: fmt.Sprintf("w%d", i)})
	}
	for i := 0; i < 6; i++ {
		start := rng.Int63n(10)
		tk := &task{id: fmt.Sprintf("t%d", i), start: start, end: start + 1 + rng.Int63n(4)}
		if rng.Intn(2) == 0 {
			tk.worker = f.workers[rng.Intn(len(f.workers))]
		}
		f.tasks = append(f.tasks, tk)
	}

	var err error
	f.link, err = graph.NewSingleLink(graph.LinkConfig[*task, *worker]{
		Name:     "assignment",
		Touches:  []string{"tasks", "workers"},
		Entities: f.tasks,
		Values:   f.workers,
		Get:      func(t *task) *worker { return t.worker },
		Set:      func(t *task, w *worker) { t.worker = w },
	})
	require.NoError(t, err)

	engine, err := shadow.New(shadow.Attribute{
		Name:      "load",
		DependsOn: []string{"assignment"},
		Refresh: func(shadow.Change) {
			for _, w := range f.workers {
				w.load = 0
				for _, tk := range f.link.Assigned(w) {
					w.load += int(tk.end - tk.start)
				}
			}
		},
	})
	require.NoError(t, err)

	tasks := make([]any, len(f.tasks))
	for i, tk := range f.tasks {
		tasks[i] = tk
	}
	workers := make([]any, len(f.workers))
	for i, w := range f.workers {
		workers[i] = w
	}

	f.d, err = New(Solution{
		Kind:        score.HardSoft,
		Facts:       constraint.FactSet{"tasks": tasks, "workers": workers},
		Relations:   []graph.Relation{f.link},
		Shadows:     engine,
		Constraints: append(constraints(), extra...),
	}, WithAssertions(true))
	require.NoError(t, err)
	return f
}

type state struct {
	assignment []*worker
	loads      []int
}

func (f *fixture) state() state {
	s := state{}
	for _, tk := range f.tasks {
		s.assignment = append(s.assignment, tk.worker)
	}
	for _, w := range f.workers {
		s.loads = append(s.loads, w.load)
	}
	return s
}

// baseline 直接对当前状态求和，不使用任何缓存
func (f *fixture) baseline() score.Score {
	total := score.HardSoft.Zero()
	for _, c := range constraints() {
		total = total.Add(c.Score(f.d.Facts()))
	}
	return total
}

func (f *fixture) randomChange(rng *rand.Rand) graph.Change {
	tk := f.tasks[rng.Intn(len(f.tasks))]
	if rng.Intn(4) == 0 {
		return graph.Assign{Entity: tk}
	}
	return graph.Assign{Entity: tk, Value: f.workers[rng.Intn(len(f.workers))]}
}

func TestApplyUndoRestoresExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		f := newFixture(t, rng)
		initial := f.d.RecomputeScore()
		require.Equal(t, f.baseline(), initial)

		type step struct {
			undo   *Undo
			before state
			score  score.Score
		}
		var steps []step
		for i := 0; i < 10; i++ {
			before := f.state()
			beforeScore := f.d.RecomputeScore()
			u, err := f.d.Apply("assignment", f.randomChange(rng))
			if err != nil {
				require.ErrorIs(t, err, graph.ErrRejectedMutation)
				assert.Equal(t, before, f.state())
				continue
			}
			steps = append(steps, step{undo: u, before: before, score: beforeScore})
			assert.True(t, f.d.IsStale())
			assert.Equal(t, f.baseline(), f.d.RecomputeScore())
		}

		for i := len(steps) - 1; i >= 0; i-- {
			require.NoError(t, f.d.Undo(steps[i].undo))
			assert.Equal(t, steps[i].before, f.state())
			assert.Equal(t, steps[i].score, f.d.RecomputeScore())
		}
		assert.Equal(t, initial, f.d.RecomputeScore())
		assert.Zero(t, f.d.Pending())
	}
}

func (f *fixture) unassign(t *testing.T, tasks ...*task) {
	for _, tk := range tasks {
		if tk.worker != nil {
			_, err := f.d.Apply("assignment", graph.Assign{Entity: tk})
			require.NoError(t, err)
		}
	}
	f.d.Commit()
}

func TestUndoIsLIFO(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(1)))
	f.unassign(t, f.tasks[0], f.tasks[1])

	first, err := f.d.Apply("assignment", graph.Assign{Entity: f.tasks[0], Value: f.workers[0]})
	require.NoError(t, err)
	second, err := f.d.Apply("assignment", graph.Assign{Entity: f.tasks[1], Value: f.workers[1]})
	require.NoError(t, err)

	assert.ErrorIs(t, f.d.Undo(first), ErrUndoOutOfOrder)
	require.NoError(t, f.d.Undo(second))
	require.NoError(t, f.d.Undo(first))
	assert.ErrorIs(t, f.d.Undo(first), ErrUndoOutOfOrder)
}

func TestApplyUnknownRelation(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(2)))
	_, err := f.d.Apply("missing", graph.Assign{})
	assert.ErrorIs(t, err, ErrUnknownRelation)
}

func TestOnlyTouchedConstraintsAreDirty(t *testing.T) {
	calendar := constraint.ForEach("calendar").Penalize("Calendar", score.HardSoftOf(0, 1))
	f := newFixture(t, rand.New(rand.NewSource(4)), calendar)
	f.unassign(t, f.tasks[0])
	f.d.RecomputeScore()
	assert.False(t, f.d.IsStale())

	_, err := f.d.Apply("assignment", graph.Assign{Entity: f.tasks[0], Value: f.workers[2]})
	require.NoError(t, err)
	for _, e := range f.d.entries {
		assert.Equal(t, e.constraint != calendar, e.dirty, e.constraint.Name())
	}
}

func TestAffects(t *testing.T) {
	tests := []struct {
		touched, dep string
		want         bool
	}{
		{"tasks", "tasks", true},
		{"tasks", "tasks.worker", true},
		{"tasks.worker", "tasks", true},
		{"tasks.worker", "tasks.worker", true},
		{"tasks.worker", "tasks.start", false},
		{"tasks", "taskset", false},
		{"tasks", "workers", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, affects(tt.touched, tt.dep), "%s -> %s", tt.touched, tt.dep)
	}
}

func TestCollectionChangeDirtiesFieldDependencies(t *testing.T) {
	span := constraint.ForEach("tasks").
		PenalizeBy("Task span", score.HardSoftOf(0, 1), func(t constraint.Tuple) int64 {
			return taskAt(t, 0).end - taskAt(t, 0).start
		}).
		DependsOn("tasks.span")
	f := newFixture(t, rand.New(rand.NewSource(9)), span)
	f.unassign(t, f.tasks[0])
	f.d.RecomputeScore()

	_, err := f.d.Apply("assignment", graph.Assign{Entity: f.tasks[0], Value: f.workers[1]})
	require.NoError(t, err)
	// 关系修改整个 tasks 集合，因此只依赖 tasks.span 的约束也要重新计算
	assert.Contains(t, f.d.DirtyConstraints(), "Task span")
	assert.Equal(t, f.baseline().Add(span.Score(f.d.Facts())), f.d.RecomputeScore())
}

func TestMatchesExplainScore(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(6)))
	total := f.d.RecomputeScore()

	sum := score.HardSoft.Zero()
	analyses := f.d.Matches()
	require.Len(t, analyses, 3)
	for _, a := range analyses {
		sum = sum.Add(a.Score)
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, "Overlapping task", analyses[0].Name)
}

func TestNewRejectsInvalidSolution(t *testing.T) {
	cs := constraints()
	_, err := New(Solution{
		Kind:        score.HardSoft,
		Facts:       constraint.FactSet{},
		Constraints: append(cs, cs[0]),
	})
	assert.ErrorIs(t, err, ErrInvalidSolution)

	_, err = New(Solution{
		Kind:        score.HardMediumSoft,
		Facts:       constraint.FactSet{},
		Constraints: cs,
	})
	assert.ErrorIs(t, err, ErrInvalidSolution)
}

func TestAssertionsPanicOnCorruption(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(8)))
	f.unassign(t, f.tasks[0])

	// 绕过关系直接修改实体字段
	other := f.tasks[1]
	if other.worker == f.workers[2] {
		other.worker = f.workers[0]
	} else {
		other.worker = f.workers[2]
	}

	assert.Panics(t, func() {
		_, _ = f.d.Apply("assignment", graph.Assign{Entity: f.tasks[0], Value: f.workers[1]})
	})
}
