package constraint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

// Identifiable 由需要出现在匹配说明中的事实实现
type Identifiable interface {
	PlanningID() string
}

// Constraint 是带名称和权重的惩罚或奖励规则
type Constraint struct {
	name        string
	weight      score.Score
	stream      *Stream
	matchWeight func(Tuple) int64
	reward      bool
	dependsOn   []string
}

func (s *Stream) Penalize(name string, weight score.Score) *Constraint {
	return &Constraint{name: name, weight: weight, stream: s}
}

// PenalizeBy 按每个元组的匹配权重放大基础权重
func (s *Stream) PenalizeBy(name string, weight score.Score, matchWeight func(Tuple) int64) *Constraint {
	return &Constraint{name: name, weight: weight, stream: s, matchWeight: matchWeight}
}

func (s *Stream) Reward(name string, weight score.Score) *Constraint {
	return &Constraint{name: name, weight: weight, stream: s, reward: true}
}

func (s *Stream) RewardBy(name string, weight score.Score, matchWeight func(Tuple) int64) *Constraint {
	return &Constraint{name: name, weight: weight, stream: s, matchWeight: matchWeight, reward: true}
}

func (c *Constraint) Name() string {
	return c.name
}

func (c *Constraint) Weight() score.Score {
	return c.weight
}

func (c *Constraint) IsReward() bool {
	return c.reward
}

func (c *Constraint) Stream() *Stream {
	return c.stream
}

func (c *Constraint) Reads() []string {
	return c.stream.Reads()
}

// DependsOn 把对某个集合的依赖缩小到其中的字段，字段键的形式为 "集合.字段"
func (c *Constraint) DependsOn(fields ...string) *Constraint {
	dup := *c
	dup.dependsOn = append(slices.Clip(c.dependsOn), fields...)
	return &dup
}

// Dependencies 返回约束依赖的数据键，没有用 DependsOn 缩小的集合按整个集合计算
func (c *Constraint) Dependencies() []string {
	var deps []string
	for _, name := range c.Reads() {
		narrowed := false
		for _, field := range c.dependsOn {
			if strings.HasPrefix(field, name+".") {
				deps = append(deps, field)
				narrowed = true
			}
		}
		if !narrowed {
			deps = append(deps, name)
		}
	}
	return deps
}

// Match 是一个命中的元组及其对总分的贡献
type Match struct {
	Tuple         Tuple
	Justification []string
	Score         score.Score
}

func (c *Constraint) impact(t Tuple) score.Score {
	var n int64 = 1
	if c.matchWeight != nil {
		n = c.matchWeight(t)
	}
	s := c.weight.Multiply(n)
	if !c.reward {
		s = s.Negate()
	}
	return s
}

// Evaluate 执行管道并计算每个匹配的分数
func (c *Constraint) Evaluate(facts Facts) []Match {
	tuples := c.stream.Evaluate(facts)
	matches := make([]Match, len(tuples))
	for i, t := range tuples {
		matches[i] = Match{Tuple: t, Justification: justify(t), Score: c.impact(t)}
	}
	return matches
}

// Score 是全部匹配分数之和
func (c *Constraint) Score(facts Facts) score.Score {
	total := c.weight.Kind().Zero()
	for _, t := range c.stream.Evaluate(facts) {
		total = total.Add(c.impact(t))
	}
	return total
}

func justify(t Tuple) []string {
	ids := make([]string, len(t))
	for i, f := range t {
		if id, ok := f.(Identifiable); ok {
			ids[i] = id.PlanningID()
		} else {
			ids[i] = fmt.Sprint(f)
		}
	}
	return ids
}

// Analysis 描述单个约束对总分的贡献
type Analysis struct {
	Name    string          `json:"name"`
	Weight  score.Score     `json:"weight"`
	Score   score.Score     `json:"score"`
	Matches []MatchAnalysis `json:"matches"`
}

type MatchAnalysis struct {
	Score         score.Score `json:"score"`
	Justification []string    `json:"justification"`
}

func Analyze(c *Constraint, matches []Match) Analysis {
	a := Analysis{
		Name:    c.name,
		Weight:  c.weight,
		Score:   c.weight.Kind().Zero(),
		Matches: make([]MatchAnalysis, len(matches)),
	}
	for i, m := range matches {
		a.Score = a.Score.Add(m.Score)
		a.Matches[i] = MatchAnalysis{Score: m.Score, Justification: m.Justification}
	}
	return a
}
