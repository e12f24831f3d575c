package graph

import (
	"fmt"
	"slices"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

// Linker 读写元素上的影子链接，零值表示缺失
type Linker[A, E comparable] interface {
	SetAnchor(e E, anchor A)
	SetNeighbors(e E, prev, next E)
	Anchor(e E) A
	Neighbors(e E) (prev, next E)
}

type ListConfig[A, E comparable] struct {
	Name     string
	Touches  []string
	Anchors  []A
	Elements []E
	Linker   Linker[A, E]
}

// ListVariable 是由资源拥有的有序链，例如车辆的访问路线
type ListVariable[A, E comparable] struct {
	name     string
	touches  []string
	linker   Linker[A, E]
	anchors  []A
	lists    map[A][]E
	elements []E
	known    map[E]struct{}
	owner    map[E]A
}

func NewListVariable[A, E comparable](cfg ListConfig[A, E]) (*ListVariable[A, E], error) {
	if cfg.Linker == nil {
		return nil, fmt.Errorf("关系 %s 缺少 Linker", cfg.Name)
	}

	l := &ListVariable[A, E]{
		name:     cfg.Name,
		touches:  cfg.Touches,
		linker:   cfg.Linker,
		anchors:  cfg.Anchors,
		lists:    make(map[A][]E, len(cfg.Anchors)),
		elements: cfg.Elements,
		known:    make(map[E]struct{}, len(cfg.Elements)),
		owner:    make(map[E]A, len(cfg.Elements)),
	}
	for _, a := range cfg.Anchors {
		if _, exists := l.lists[a]; exists {
			return nil, fmt.Errorf("关系 %s 中存在重复的锚点", cfg.Name)
		}
		l.lists[a] = nil
	}
	for _, e := range cfg.Elements {
		if _, exists := l.known[e]; exists {
			return nil, fmt.Errorf("关系 %s 中存在重复的元素", cfg.Name)
		}
		l.known[e] = struct{}{}
	}

	return l, nil
}

func (l *ListVariable[A, E]) Name() string {
	return l.name
}

func (l *ListVariable[A, E]) Touches() []string {
	return l.touches
}

// Load 把元素依次追加到 anchor 的链尾，只用于加载初始解
func (l *ListVariable[A, E]) Load(anchor A, elements ...E) error {
	for _, e := range elements {
		if _, _, err := l.Apply(Insert{Element: e, Anchor: anchor, Index: len(l.lists[anchor])}); err != nil {
			return err
		}
	}
	return nil
}

// List 返回 anchor 当前的链，调用方不得修改
func (l *ListVariable[A, E]) List(anchor A) []E {
	return l.lists[anchor]
}

// Owner 返回元素所在链的锚点
func (l *ListVariable[A, E]) Owner(e E) (A, bool) {
	a, ok := l.owner[e]
	return a, ok
}

func (l *ListVariable[A, E]) Anchors() []A {
	return l.anchors
}

func (l *ListVariable[A, E]) reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrRejectedMutation, l.name, fmt.Sprintf(format, args...))
}

func (l *ListVariable[A, E]) element(v any) (E, error) {
	e, ok := v.(E)
	if !ok {
		return e, l.reject("元素类型错误 %T", v)
	}
	if _, known := l.known[e]; !known {
		return e, l.reject("元素不属于该关系")
	}
	return e, nil
}

func (l *ListVariable[A, E]) anchor(v any) (A, error) {
	a, ok := v.(A)
	if !ok {
		return a, l.reject("锚点类型错误 %T", v)
	}
	if _, known := l.lists[a]; !known {
		return a, l.reject("锚点不属于该关系")
	}
	return a, nil
}

func (l *ListVariable[A, E]) Apply(ch Change) (Change, shadow.Change, error) {
	switch ch := ch.(type) {
	case Insert:
		return l.insert(ch)
	case Remove:
		return l.remove(ch)
	case Move:
		return l.move(ch)
	default:
		return nil, shadow.Change{}, l.reject("链关系不支持 %T", ch)
	}
}

func (l *ListVariable[A, E]) insert(ch Insert) (Change, shadow.Change, error) {
	e, err := l.element(ch.Element)
	if err != nil {
		return nil, shadow.Change{}, err
	}
	a, err := l.anchor(ch.Anchor)
	if err != nil {
		return nil, shadow.Change{}, err
	}
	if _, assigned := l.owner[e]; assigned {
		return nil, shadow.Change{}, l.reject("元素已经在链中")
	}
	if ch.Index < 0 || ch.Index > len(l.lists[a]) {
		return nil, shadow.Change{}, l.reject("下标 %d 越界", ch.Index)
	}

	l.lists[a] = slices.Insert(l.lists[a], ch.Index, e)
	l.owner[e] = a

	return Remove{Element: e}, shadow.Change{
		Relation: l.name,
		Moved:    []any{e},
		Segments: []shadow.Segment{l.segment(a, ch.Index, ch.Index+1)},
	}, nil
}

func (l *ListVariable[A, E]) remove(ch Remove) (Change, shadow.Change, error) {
	e, err := l.element(ch.Element)
	if err != nil {
		return nil, shadow.Change{}, err
	}
	a, assigned := l.owner[e]
	if !assigned {
		return nil, shadow.Change{}, l.reject("元素不在任何链中")
	}

	index := slices.Index(l.lists[a], e)
	l.lists[a] = slices.Delete(l.lists[a], index, index+1)
	delete(l.owner, e)

	return Insert{Element: e, Anchor: a, Index: index}, shadow.Change{
		Relation: l.name,
		Detached: []any{e},
		Segments: []shadow.Segment{l.segment(a, index, index)},
	}, nil
}

func (l *ListVariable[A, E]) move(ch Move) (Change, shadow.Change, error) {
	e, err := l.element(ch.Element)
	if err != nil {
		return nil, shadow.Change{}, err
	}
	to, err := l.anchor(ch.Anchor)
	if err != nil {
		return nil, shadow.Change{}, err
	}
	from, assigned := l.owner[e]
	if !assigned {
		return nil, shadow.Change{}, l.reject("元素不在任何链中")
	}

	oldIndex := slices.Index(l.lists[from], e)
	limit := len(l.lists[to])
	if from == to {
		limit--
		if ch.Index == oldIndex {
			return nil, shadow.Change{}, l.reject("元素已经在目标位置")
		}
	}
	if ch.Index < 0 || ch.Index > limit {
		return nil, shadow.Change{}, l.reject("下标 %d 越界", ch.Index)
	}

	l.lists[from] = slices.Delete(l.lists[from], oldIndex, oldIndex+1)
	l.lists[to] = slices.Insert(l.lists[to], ch.Index, e)
	l.owner[e] = to

	sc := shadow.Change{Relation: l.name, Moved: []any{e}}
	if from == to {
		sc.Segments = []shadow.Segment{l.segment(to, min(oldIndex, ch.Index), max(oldIndex, ch.Index)+1)}
	} else {
		sc.Segments = []shadow.Segment{
			l.segment(from, oldIndex, oldIndex),
			l.segment(to, ch.Index, ch.Index+1),
		}
	}

	return Move{Element: e, Anchor: from, Index: oldIndex}, sc, nil
}

// segment 把 through 截断到链尾
func (l *ListVariable[A, E]) segment(a A, from, through int) shadow.Segment {
	return shadow.Segment{Anchor: a, From: from, Through: min(through, len(l.lists[a])-1)}
}

func (l *ListVariable[A, E]) Initial() shadow.Change {
	sc := shadow.Change{Relation: l.name}
	for _, a := range l.anchors {
		for _, e := range l.lists[a] {
			sc.Moved = append(sc.Moved, e)
		}
		sc.Segments = append(sc.Segments, l.segment(a, 0, len(l.lists[a])-1))
	}
	for _, e := range l.elements {
		if _, assigned := l.owner[e]; !assigned {
			sc.Detached = append(sc.Detached, e)
		}
	}
	return sc
}

// Attributes 返回链自带的两个影子属性：反向引用和前后邻居
func (l *ListVariable[A, E]) Attributes() []shadow.Attribute {
	return []shadow.Attribute{
		{Name: l.InverseAttribute(), DependsOn: []string{l.name}, Refresh: l.refreshInverse},
		{Name: l.NeighborsAttribute(), DependsOn: []string{l.name}, Refresh: l.refreshNeighbors},
	}
}

func (l *ListVariable[A, E]) InverseAttribute() string {
	return l.name + ".inverse"
}

func (l *ListVariable[A, E]) NeighborsAttribute() string {
	return l.name + ".neighbors"
}

func (l *ListVariable[A, E]) refreshInverse(ch shadow.Change) {
	var none A
	for _, v := range ch.Moved {
		e := v.(E)
		l.linker.SetAnchor(e, l.owner[e])
	}
	for _, v := range ch.Detached {
		l.linker.SetAnchor(v.(E), none)
	}
}

func (l *ListVariable[A, E]) refreshNeighbors(ch shadow.Change) {
	var none E
	for _, v := range ch.Detached {
		l.linker.SetNeighbors(v.(E), none, none)
	}
	for _, seg := range ch.Segments {
		list := l.lists[seg.Anchor.(A)]
		for i := max(seg.From-1, 0); i <= min(seg.Through, len(list)-1); i++ {
			prev, next := none, none
			if i > 0 {
				prev = list[i-1]
			}
			if i < len(list)-1 {
				next = list[i+1]
			}
			l.linker.SetNeighbors(list[i], prev, next)
		}
	}
}

// Validate 沿着影子指针遍历每条链，检查环、悬空引用以及与链表内容是否一致
func (l *ListVariable[A, E]) Validate() error {
	var noAnchor A
	var none E

	for _, a := range l.anchors {
		list := l.lists[a]
		if len(list) == 0 {
			continue
		}

		head := list[0]
		if prev, _ := l.linker.Neighbors(head); prev != none {
			return fmt.Errorf("%w: %s 的链头存在前驱", ErrCorrupted, l.name)
		}

		visited := make(map[E]struct{}, len(list))
		var prev E
		i := 0
		for e := head; e != none; i++ {
			if _, seen := visited[e]; seen {
				return fmt.Errorf("%w: %s 的链中存在环", ErrCorrupted, l.name)
			}
			visited[e] = struct{}{}

			if i >= len(list) || list[i] != e {
				return fmt.Errorf("%w: %s 的指针与链内容不一致", ErrCorrupted, l.name)
			}
			if l.linker.Anchor(e) != a || l.owner[e] != a {
				return fmt.Errorf("%w: %s 的反向引用悬空", ErrCorrupted, l.name)
			}
			p, next := l.linker.Neighbors(e)
			if p != prev {
				return fmt.Errorf("%w: %s 的前驱指针错误", ErrCorrupted, l.name)
			}
			prev = e
			e = next
		}
		if i != len(list) {
			return fmt.Errorf("%w: %s 的链长度与指针不一致", ErrCorrupted, l.name)
		}
	}

	for _, e := range l.elements {
		if _, assigned := l.owner[e]; assigned {
			continue
		}
		prev, next := l.linker.Neighbors(e)
		if l.linker.Anchor(e) != noAnchor || prev != none || next != none {
			return fmt.Errorf("%w: %s 中未分配的元素仍有链接", ErrCorrupted, l.name)
		}
	}

	return nil
}
