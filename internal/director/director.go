package director

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/graph"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

var (
	ErrUnknownRelation = errors.New("关系不存在")
	ErrUndoOutOfOrder  = errors.New("撤销必须按照后进先出的顺序进行")
	ErrInvalidSolution = errors.New("解的定义无效")
)

// Solution 是一个完整加载的规划问题
type Solution struct {
	Kind        score.Kind
	Facts       constraint.Facts
	Relations   []graph.Relation
	Shadows     *shadow.Engine // 可以为 nil
	Constraints []*constraint.Constraint
}

type Option func(*Director)

// WithAssertions 在每次变更和撤销后校验关系的一致性，发现损坏时直接 panic
func WithAssertions(enabled bool) Option {
	return func(d *Director) {
		d.assertions = enabled
	}
}

type entry struct {
	constraint *constraint.Constraint
	deps       []string
	score      score.Score
	dirty      bool
}

// Undo 记录撤销一次变更所需的全部信息
type Undo struct {
	relation string
	inverse  graph.Change
	scores   []score.Score
	dirty    []bool
}

// Director 负责执行变更、传播影子属性并维护分数，不是并发安全的
type Director struct {
	kind       score.Kind
	facts      constraint.Facts
	relations  map[string]graph.Relation
	names      []string
	shadows    *shadow.Engine
	entries    []*entry
	applied    []*Undo
	assertions bool
}

func New(sol Solution, opts ...Option) (*Director, error) {
	d := &Director{
		kind:      sol.Kind,
		facts:     sol.Facts,
		relations: make(map[string]graph.Relation, len(sol.Relations)),
		shadows:   sol.Shadows,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, rel := range sol.Relations {
		if _, exists := d.relations[rel.Name()]; exists {
			return nil, fmt.Errorf("%w: 关系 %s 重复", ErrInvalidSolution, rel.Name())
		}
		d.relations[rel.Name()] = rel
		d.names = append(d.names, rel.Name())
	}

	seen := make(map[string]struct{}, len(sol.Constraints))
	for _, c := range sol.Constraints {
		if _, exists := seen[c.Name()]; exists {
			return nil, fmt.Errorf("%w: 约束 %s 重复", ErrInvalidSolution, c.Name())
		}
		seen[c.Name()] = struct{}{}
		if c.Weight().Kind() != sol.Kind {
			return nil, fmt.Errorf("%w: 约束 %s 的权重类型为 %s", ErrInvalidSolution, c.Name(), c.Weight().Kind())
		}

		d.entries = append(d.entries, &entry{constraint: c, deps: c.Dependencies(), score: sol.Kind.Zero(), dirty: true})
	}

	for _, name := range d.names {
		d.shadows.Propagate(d.relations[name].Initial())
	}
	if d.assertions {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Director) Kind() score.Kind {
	return d.kind
}

func (d *Director) Facts() constraint.Facts {
	return d.facts
}

func (d *Director) Relation(name string) (graph.Relation, bool) {
	rel, ok := d.relations[name]
	return rel, ok
}

func (d *Director) snapshot() ([]score.Score, []bool) {
	scores := make([]score.Score, len(d.entries))
	dirty := make([]bool, len(d.entries))
	for i, e := range d.entries {
		scores[i] = e.score
		dirty[i] = e.dirty
	}
	return scores, dirty
}

// affects 判断修改的数据键是否影响依赖键，整个集合的键覆盖它的所有字段键
func affects(touched, dep string) bool {
	return touched == dep || strings.HasPrefix(dep, touched+".") || strings.HasPrefix(touched, dep+".")
}

func (d *Director) markDirty(touched []string) {
	for _, e := range d.entries {
		if e.dirty {
			continue
		}
	deps:
		for _, dep := range e.deps {
			for _, name := range touched {
				if affects(name, dep) {
					e.dirty = true
					break deps
				}
			}
		}
	}
}

func (d *Director) assert(rel graph.Relation) {
	if !d.assertions {
		return
	}
	if err := rel.Validate(); err != nil {
		panic(err)
	}
}

// Apply 原子地执行一次变更，被拒绝时图、影子属性和分数都保持不变
func (d *Director) Apply(relation string, ch graph.Change) (*Undo, error) {
	rel, ok := d.relations[relation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelation, relation)
	}

	inverse, sc, err := rel.Apply(ch)
	if err != nil {
		return nil, err
	}
	d.shadows.Propagate(sc)

	u := &Undo{relation: relation, inverse: inverse}
	u.scores, u.dirty = d.snapshot()
	d.markDirty(rel.Touches())
	d.applied = append(d.applied, u)

	d.assert(rel)
	return u, nil
}

// Undo 撤销最近一次尚未撤销的变更
func (d *Director) Undo(u *Undo) error {
	if len(d.applied) == 0 || d.applied[len(d.applied)-1] != u {
		return ErrUndoOutOfOrder
	}

	rel := d.relations[u.relation]
	_, sc, err := rel.Apply(u.inverse)
	if err != nil {
		return fmt.Errorf("%w: 逆变更执行失败: %w", graph.ErrCorrupted, err)
	}
	d.shadows.Propagate(sc)

	for i, e := range d.entries {
		e.score = u.scores[i]
		e.dirty = u.dirty[i]
	}
	d.applied = d.applied[:len(d.applied)-1]

	d.assert(rel)
	return nil
}

// Commit 丢弃全部撤销记录
func (d *Director) Commit() {
	d.applied = nil
}

// Pending 返回可以撤销的变更数量
func (d *Director) Pending() int {
	return len(d.applied)
}

// IsStale 表示上次计算之后有约束需要重新计算
func (d *Director) IsStale() bool {
	for _, e := range d.entries {
		if e.dirty {
			return true
		}
	}
	return false
}

// DirtyConstraints 返回下次 RecomputeScore 需要重新计算的约束名
func (d *Director) DirtyConstraints() []string {
	var names []string
	for _, e := range d.entries {
		if e.dirty {
			names = append(names, e.constraint.Name())
		}
	}
	return names
}

// RecomputeScore 只重新计算被标记的约束，然后汇总缓存的分数
func (d *Director) RecomputeScore() score.Score {
	total := d.kind.Zero()
	for _, e := range d.entries {
		if e.dirty {
			e.score = e.constraint.Score(d.facts)
			e.dirty = false
		}
		total = total.Add(e.score)
	}
	return total
}

// Matches 返回每个约束的分数以及命中的元组
func (d *Director) Matches() []constraint.Analysis {
	result := make([]constraint.Analysis, len(d.entries))
	for i, e := range d.entries {
		a := constraint.Analyze(e.constraint, e.constraint.Evaluate(d.facts))
		e.score = a.Score
		e.dirty = false
		result[i] = a
	}
	return result
}

func (d *Director) Validate() error {
	for _, name := range d.names {
		if err := d.relations[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}
