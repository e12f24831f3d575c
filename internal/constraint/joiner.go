package constraint

import "cmp"

type JoinerKind int

const (
	JoinEqual JoinerKind = iota + 1
	JoinLessThan
	JoinLessThanOrEqual
	JoinGreaterThan
	JoinGreaterThanOrEqual
	JoinOverlapping
	JoinFiltering
)

// Joiner 是连接两个元组流时的匹配条件
type Joiner struct {
	Kind JoinerKind
	// 仅 JoinEqual 使用，用于建立哈希索引
	leftKey  func(Tuple) any
	rightKey func(Tuple) any
	test     func(left, right Tuple) bool
}

// Matches 判断左右元组是否满足该条件
func (j Joiner) Matches(left, right Tuple) bool {
	return j.test(left, right)
}

func Equal[K comparable](left, right func(Tuple) K) Joiner {
	return Joiner{
		Kind:     JoinEqual,
		leftKey:  func(t Tuple) any { return left(t) },
		rightKey: func(t Tuple) any { return right(t) },
		test:     func(l, r Tuple) bool { return left(l) == right(r) },
	}
}

// EqualBy 左右两侧使用同一个取键函数
func EqualBy[K comparable](key func(Tuple) K) Joiner {
	return Equal(key, key)
}

func compareJoiner[K cmp.Ordered](kind JoinerKind, left, right func(Tuple) K, accept func(int) bool) Joiner {
	return Joiner{
		Kind: kind,
		test: func(l, r Tuple) bool { return accept(cmp.Compare(left(l), right(r))) },
	}
}

func LessThan[K cmp.Ordered](left, right func(Tuple) K) Joiner {
	return compareJoiner(JoinLessThan, left, right, func(c int) bool { return c < 0 })
}

func LessThanOrEqual[K cmp.Ordered](left, right func(Tuple) K) Joiner {
	return compareJoiner(JoinLessThanOrEqual, left, right, func(c int) bool { return c <= 0 })
}

func GreaterThan[K cmp.Ordered](left, right func(Tuple) K) Joiner {
	return compareJoiner(JoinGreaterThan, left, right, func(c int) bool { return c > 0 })
}

func GreaterThanOrEqual[K cmp.Ordered](left, right func(Tuple) K) Joiner {
	return compareJoiner(JoinGreaterThanOrEqual, left, right, func(c int) bool { return c >= 0 })
}

// Overlapping 判断两个左闭右开区间是否相交
func Overlapping[K cmp.Ordered](leftStart, leftEnd, rightStart, rightEnd func(Tuple) K) Joiner {
	return Joiner{
		Kind: JoinOverlapping,
		test: func(l, r Tuple) bool {
			return leftStart(l) < rightEnd(r) && rightStart(r) < leftEnd(l)
		},
	}
}

// OverlappingBy 左右两侧使用同一组区间函数
func OverlappingBy[K cmp.Ordered](start, end func(Tuple) K) Joiner {
	return Overlapping(start, end, start, end)
}

func Filtering(predicate func(left, right Tuple) bool) Joiner {
	return Joiner{Kind: JoinFiltering, test: predicate}
}

func firstEqual(joiners []Joiner) (Joiner, bool) {
	for _, j := range joiners {
		if j.Kind == JoinEqual {
			return j, true
		}
	}
	return Joiner{}, false
}

func matchesAll(joiners []Joiner, left, right Tuple) bool {
	for _, j := range joiners {
		if !j.test(left, right) {
			return false
		}
	}
	return true
}
