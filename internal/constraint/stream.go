package constraint

import (
	"fmt"
	"slices"
)

// Tuple 是流中的一条记录，按连接顺序依次存放匹配到的事实
type Tuple []any

// Arg 以类型 T 读取元组的第 i 个元素
func Arg[T any](t Tuple, i int) T {
	v, ok := t[i].(T)
	if !ok {
		panic(fmt.Sprintf("元组第 %d 个元素的类型为 %T", i, t[i]))
	}
	return v
}

// Facts 按名称提供事实集合
type Facts interface {
	Collection(name string) []any
}

// FactSet 是 Facts 的简单实现
type FactSet map[string][]any

func (f FactSet) Collection(name string) []any {
	return f[name]
}

// Assignable 由规划实体实现，ForEach 会跳过未分配的实体
type Assignable interface {
	IsAssigned() bool
}

// Op 是管道中的一个操作
type Op interface {
	isOp()
}

type Select struct {
	Collection        string
	IncludeUnassigned bool
}

type UniquePair struct {
	Collection string
	Joiners    []Joiner
}

type Filter struct {
	Predicate func(Tuple) bool
}

type Join struct {
	Right   *Stream
	Joiners []Joiner
}

type Exists struct {
	Right   *Stream
	Joiners []Joiner
	Negate  bool
}

func (Select) isOp()     {}
func (UniquePair) isOp() {}
func (Filter) isOp()     {}
func (Join) isOp()       {}
func (Exists) isOp()     {}

// Stream 是有序的操作列表，每次追加操作都返回新的 Stream
type Stream struct {
	ops []Op
}

func ForEach(collection string) *Stream {
	return &Stream{ops: []Op{Select{Collection: collection}}}
}

func ForEachIncludingUnassigned(collection string) *Stream {
	return &Stream{ops: []Op{Select{Collection: collection, IncludeUnassigned: true}}}
}

// ForEachUniquePair 枚举无序对 (a, b)，a 在集合中位于 b 之前，每对只出现一次
func ForEachUniquePair(collection string, joiners ...Joiner) *Stream {
	return &Stream{ops: []Op{UniquePair{Collection: collection, Joiners: joiners}}}
}

func (s *Stream) with(op Op) *Stream {
	return &Stream{ops: append(slices.Clip(s.ops), op)}
}

func (s *Stream) Filter(predicate func(Tuple) bool) *Stream {
	return s.with(Filter{Predicate: predicate})
}

func (s *Stream) Join(right *Stream, joiners ...Joiner) *Stream {
	return s.with(Join{Right: right, Joiners: joiners})
}

func (s *Stream) IfExists(right *Stream, joiners ...Joiner) *Stream {
	return s.with(Exists{Right: right, Joiners: joiners})
}

func (s *Stream) IfNotExists(right *Stream, joiners ...Joiner) *Stream {
	return s.with(Exists{Right: right, Joiners: joiners, Negate: true})
}

func (s *Stream) Ops() []Op {
	return slices.Clone(s.ops)
}

// Reads 返回管道读取的全部集合名
func (s *Stream) Reads() []string {
	var names []string
	add := func(name string) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	for _, op := range s.ops {
		switch op := op.(type) {
		case Select:
			add(op.Collection)
		case UniquePair:
			add(op.Collection)
		case Join:
			for _, name := range op.Right.Reads() {
				add(name)
			}
		case Exists:
			for _, name := range op.Right.Reads() {
				add(name)
			}
		}
	}
	return names
}

func selectFacts(facts Facts, collection string, includeUnassigned bool) []any {
	all := facts.Collection(collection)
	if includeUnassigned {
		return all
	}
	result := make([]any, 0, len(all))
	for _, f := range all {
		if a, ok := f.(Assignable); ok && !a.IsAssigned() {
			continue
		}
		result = append(result, f)
	}
	return result
}

// Evaluate 按顺序解释执行管道，输出顺序由集合顺序决定
func (s *Stream) Evaluate(facts Facts) []Tuple {
	var tuples []Tuple
	for _, op := range s.ops {
		switch op := op.(type) {
		case Select:
			items := selectFacts(facts, op.Collection, op.IncludeUnassigned)
			tuples = make([]Tuple, len(items))
			for i, item := range items {
				tuples[i] = Tuple{item}
			}
		case UniquePair:
			tuples = uniquePairs(selectFacts(facts, op.Collection, false), op.Joiners)
		case Filter:
			kept := tuples[:0:0]
			for _, t := range tuples {
				if op.Predicate(t) {
					kept = append(kept, t)
				}
			}
			tuples = kept
		case Join:
			tuples = join(tuples, op.Right.Evaluate(facts), op.Joiners)
		case Exists:
			tuples = exists(tuples, op.Right.Evaluate(facts), op.Joiners, op.Negate)
		}
	}
	return tuples
}

// index 用第一个相等条件为右侧建立哈希索引
type index struct {
	joiner  Joiner
	buckets map[any][]int
	all     []int
	ok      bool
}

func newIndex(right []Tuple, joiners []Joiner) index {
	idx := index{}
	idx.joiner, idx.ok = firstEqual(joiners)
	if !idx.ok {
		idx.all = make([]int, len(right))
		for i := range right {
			idx.all[i] = i
		}
		return idx
	}
	idx.buckets = make(map[any][]int)
	for i, r := range right {
		key := idx.joiner.rightKey(r)
		idx.buckets[key] = append(idx.buckets[key], i)
	}
	return idx
}

func (idx index) candidates(left Tuple) []int {
	if !idx.ok {
		return idx.all
	}
	return idx.buckets[idx.joiner.leftKey(left)]
}

func uniquePairs(items []any, joiners []Joiner) []Tuple {
	singles := make([]Tuple, len(items))
	for i, item := range items {
		singles[i] = Tuple{item}
	}

	idx := newIndex(singles, joiners)
	var pairs []Tuple
	for i, a := range singles {
		for _, j := range idx.candidates(a) {
			if j <= i {
				continue
			}
			b := singles[j]
			if matchesAll(joiners, a, b) {
				pairs = append(pairs, Tuple{a[0], b[0]})
			}
		}
	}
	return pairs
}

func join(left, right []Tuple, joiners []Joiner) []Tuple {
	idx := newIndex(right, joiners)
	var result []Tuple
	for _, l := range left {
		for _, i := range idx.candidates(l) {
			r := right[i]
			if !matchesAll(joiners, l, r) {
				continue
			}
			joined := make(Tuple, 0, len(l)+len(r))
			joined = append(joined, l...)
			joined = append(joined, r...)
			result = append(result, joined)
		}
	}
	return result
}

func exists(left, right []Tuple, joiners []Joiner, negate bool) []Tuple {
	idx := newIndex(right, joiners)
	var result []Tuple
	for _, l := range left {
		found := false
		for _, i := range idx.candidates(l) {
			if matchesAll(joiners, l, right[i]) {
				found = true
				break
			}
		}
		if found != negate {
			result = append(result, l)
		}
	}
	return result
}
