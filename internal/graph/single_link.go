package graph

import (
	"fmt"
	"slices"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

type LinkConfig[T, V comparable] struct {
	Name     string
	Touches  []string
	Entities []T
	Values   []V // 值域，不包含“未分配”
	Get      func(T) V
	Set      func(T, V)
	Pinned   func(T) bool // 可选，被固定的实体不允许修改
}

// SingleLink 是可为空的单值分配关系 Task -> Resource，并维护反向索引
type SingleLink[T, V comparable] struct {
	name     string
	touches  []string
	get      func(T) V
	set      func(T, V)
	pinned   func(T) bool
	order    map[T]int
	values   map[V]struct{}
	inverse  map[V]map[T]struct{}
	entities []T
	domain   []V
}

func NewSingleLink[T, V comparable](cfg LinkConfig[T, V]) (*SingleLink[T, V], error) {
	if cfg.Get == nil || cfg.Set == nil {
		return nil, fmt.Errorf("关系 %s 缺少 Get 或 Set", cfg.Name)
	}

	l := &SingleLink[T, V]{
		name:     cfg.Name,
		touches:  cfg.Touches,
		get:      cfg.Get,
		set:      cfg.Set,
		pinned:   cfg.Pinned,
		order:    make(map[T]int, len(cfg.Entities)),
		values:   make(map[V]struct{}, len(cfg.Values)),
		inverse:  make(map[V]map[T]struct{}),
		entities: cfg.Entities,
		domain:   cfg.Values,
	}

	var zero V
	for _, v := range cfg.Values {
		l.values[v] = struct{}{}
	}
	for i, e := range cfg.Entities {
		if _, exists := l.order[e]; exists {
			return nil, fmt.Errorf("关系 %s 中存在重复的实体", cfg.Name)
		}
		l.order[e] = i

		v := l.get(e)
		if v == zero {
			continue
		}
		if _, ok := l.values[v]; !ok {
			return nil, fmt.Errorf("关系 %s 中实体的初始值不在值域中", cfg.Name)
		}
		l.link(e, v)
	}

	return l, nil
}

func (l *SingleLink[T, V]) Name() string {
	return l.name
}

func (l *SingleLink[T, V]) Touches() []string {
	return l.touches
}

func (l *SingleLink[T, V]) link(e T, v V) {
	if _, ok := l.inverse[v]; !ok {
		l.inverse[v] = make(map[T]struct{})
	}
	l.inverse[v][e] = struct{}{}
}

func (l *SingleLink[T, V]) unlink(e T, v V) {
	delete(l.inverse[v], e)
	if len(l.inverse[v]) == 0 {
		delete(l.inverse, v)
	}
}

func (l *SingleLink[T, V]) reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrRejectedMutation, l.name, fmt.Sprintf(format, args...))
}

func (l *SingleLink[T, V]) Apply(ch Change) (Change, shadow.Change, error) {
	assign, ok := ch.(Assign)
	if !ok {
		return nil, shadow.Change{}, l.reject("单值关系不支持 %T", ch)
	}

	e, ok := assign.Entity.(T)
	if !ok {
		return nil, shadow.Change{}, l.reject("实体类型错误 %T", assign.Entity)
	}
	if _, known := l.order[e]; !known {
		return nil, shadow.Change{}, l.reject("实体不属于该关系")
	}
	if l.pinned != nil && l.pinned(e) {
		return nil, shadow.Change{}, l.reject("实体已被固定")
	}

	var zero V
	next := zero
	if assign.Value != nil {
		v, ok := assign.Value.(V)
		if !ok {
			return nil, shadow.Change{}, l.reject("值类型错误 %T", assign.Value)
		}
		if _, inRange := l.values[v]; !inRange && v != zero {
			return nil, shadow.Change{}, l.reject("值不在值域中")
		}
		next = v
	}

	prev := l.get(e)
	if prev == next {
		return nil, shadow.Change{}, l.reject("重复分配")
	}

	if prev != zero {
		l.unlink(e, prev)
	}
	if next != zero {
		l.link(e, next)
	}
	l.set(e, next)

	inverse := Assign{Entity: e}
	var owners []any
	if prev != zero {
		inverse.Value = prev
		owners = append(owners, prev)
	}
	if next != zero {
		owners = append(owners, next)
	}

	return inverse, shadow.Change{Relation: l.name, Moved: []any{e}, Owners: owners}, nil
}

func (l *SingleLink[T, V]) Initial() shadow.Change {
	moved := make([]any, len(l.entities))
	for i, e := range l.entities {
		moved[i] = e
	}
	owners := make([]any, len(l.domain))
	for i, v := range l.domain {
		owners[i] = v
	}
	return shadow.Change{Relation: l.name, Moved: moved, Owners: owners}
}

// Count 返回分配给 v 的实体数量
func (l *SingleLink[T, V]) Count(v V) int {
	return len(l.inverse[v])
}

// Assigned 按加载顺序返回分配给 v 的实体
func (l *SingleLink[T, V]) Assigned(v V) []T {
	result := make([]T, 0, len(l.inverse[v]))
	for e := range l.inverse[v] {
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b T) int {
		return l.order[a] - l.order[b]
	})
	return result
}

// Validate 检查反向索引与实体字段是否一致
func (l *SingleLink[T, V]) Validate() error {
	var zero V
	total := 0
	for _, e := range l.entities {
		v := l.get(e)
		if v == zero {
			continue
		}
		total++
		if _, ok := l.inverse[v][e]; !ok {
			return fmt.Errorf("%w: %s 的反向索引缺少实体", ErrCorrupted, l.name)
		}
	}

	indexed := 0
	for _, set := range l.inverse {
		indexed += len(set)
	}
	if indexed != total {
		return fmt.Errorf("%w: %s 的反向索引包含悬空引用", ErrCorrupted, l.name)
	}
	return nil
}
