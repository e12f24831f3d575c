package shadow

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidDependency = errors.New("影子属性依赖关系无效")

// Segment 描述一条链中前驱发生变化的位置区间 [From, Through]
type Segment struct {
	Anchor  any
	From    int
	Through int
}

// Change 描述一次变更具体触及了哪些元素
type Change struct {
	Relation string
	Moved    []any     // 所属资源可能发生变化的元素
	Segments []Segment // 需要重新链接和级联计算的链区间
	Detached []any     // 已经从所有链中移除的元素
	Owners   []any     // 单值关系中变更前后的值，只有这些值的反向索引发生了变化
}

// Attribute 是一个派生属性，DependsOn 中的名称可以是关系名或其他属性名
type Attribute struct {
	Name      string
	DependsOn []string
	Refresh   func(ch Change)
}

// Engine 按拓扑顺序重新计算受影响的派生属性
type Engine struct {
	order []Attribute
}

func New(attrs ...Attribute) (*Engine, error) {
	index := make(map[string]int, len(attrs))
	for i, attr := range attrs {
		if attr.Name == "" {
			return nil, fmt.Errorf("%w: 第 %d 个属性没有名称", ErrInvalidDependency, i+1)
		}
		if attr.Refresh == nil {
			return nil, fmt.Errorf("%w: 属性 %s 没有 Refresh", ErrInvalidDependency, attr.Name)
		}
		if _, exists := index[attr.Name]; exists {
			return nil, fmt.Errorf("%w: 属性 %s 重复声明", ErrInvalidDependency, attr.Name)
		}
		index[attr.Name] = i
	}

	// Kahn 算法，入度相同时保持声明顺序
	inDegree := make([]int, len(attrs))
	dependents := make([][]int, len(attrs))
	for i, attr := range attrs {
		for _, dep := range attr.DependsOn {
			if dep == attr.Name {
				return nil, fmt.Errorf("%w: 属性 %s 依赖自身", ErrInvalidDependency, attr.Name)
			}
			j, isAttr := index[dep]
			if !isAttr {
				// 不是属性的依赖视为关系名
				continue
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range attrs {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]Attribute, 0, len(attrs))
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, attrs[i])
		for _, j := range dependents[i] {
			inDegree[j]--
			if inDegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) != len(attrs) {
		return nil, fmt.Errorf("%w: 属性之间存在循环依赖", ErrInvalidDependency)
	}

	return &Engine{order: order}, nil
}

// Order 返回属性的计算顺序
func (e *Engine) Order() []string {
	names := make([]string, len(e.order))
	for i, attr := range e.order {
		names[i] = attr.Name
	}
	return names
}

// Propagate 只重新计算从 ch.Relation 可达的属性
func (e *Engine) Propagate(ch Change) {
	if e == nil {
		return
	}

	triggered := map[string]bool{ch.Relation: true}
	for _, attr := range e.order {
		for _, dep := range attr.DependsOn {
			if triggered[dep] {
				attr.Refresh(ch)
				triggered[attr.Name] = true
				break
			}
		}
	}
}
