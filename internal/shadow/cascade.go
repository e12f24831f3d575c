package shadow

import "fmt"

// Mode 决定级联属性的重算策略
type Mode int

const (
	// Full 每次都重算从变更点到链尾的全部元素
	Full Mode = iota
	// Memoized 在重算结果与旧值相同且已越过所有结构变化点后提前停止
	Memoized
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "full":
		return Full, nil
	case "memoized":
		return Memoized, nil
	default:
		return Full, fmt.Errorf("未知的传播模式 %q", s)
	}
}

func (m Mode) String() string {
	if m == Memoized {
		return "memoized"
	}
	return "full"
}

// Cascade 沿链的顺序重新计算级联属性
type Cascade[E any] struct {
	Mode Mode
	// Update 依据已经链接好的前驱重新计算 e 的值，返回值是否发生变化
	Update func(e E) bool
	// Observe 可选，接收每次运行访问的元素数量
	Observe func(visited int)
}

// Run 从 from 开始重算 chain 的后缀，through 之前的位置必定会被访问
func (c *Cascade[E]) Run(chain []E, from, through int) int {
	visited := 0
	for i := max(from, 0); i < len(chain); i++ {
		changed := c.Update(chain[i])
		visited++
		if c.Mode == Memoized && !changed && i >= through {
			break
		}
	}
	if c.Observe != nil {
		c.Observe(visited)
	}
	return visited
}

// Clear 重新计算已被移出链的元素，使其级联值变为缺失
func (c *Cascade[E]) Clear(elements ...E) {
	for _, e := range elements {
		c.Update(e)
	}
}
