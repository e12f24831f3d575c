package graph

import (
	"errors"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

var (
	// ErrRejectedMutation 表示变更不合法，图保持原样
	ErrRejectedMutation = errors.New("变更被拒绝")
	// ErrCorrupted 表示图的内部一致性被破坏，属于程序缺陷
	ErrCorrupted = errors.New("规划图一致性被破坏")
)

// Change 是对某个分配关系的一次变更
type Change interface {
	isChange()
}

// Assign 修改单值关系，Value 为 nil 表示取消分配
type Assign struct {
	Entity any
	Value  any
}

// Insert 把 Element 插入到 Anchor 所拥有的链的 Index 位置
type Insert struct {
	Element any
	Anchor  any
	Index   int
}

// Remove 把 Element 从它所在的链中移除
type Remove struct {
	Element any
}

// Move 把 Element 移动到 Anchor 所拥有的链的 Index 位置（移除后的下标）
type Move struct {
	Element any
	Anchor  any
	Index   int
}

func (Assign) isChange() {}
func (Insert) isChange() {}
func (Remove) isChange() {}
func (Move) isChange()   {}

// Relation 是可以被外部搜索修改的分配关系
type Relation interface {
	Name() string
	// Touches 返回该关系变化时可能变化的数据键，可以是集合名或 "集合.字段"
	Touches() []string
	// Apply 原子地执行变更，返回用于撤销的逆变更以及需要传播的影子变化
	Apply(ch Change) (inverse Change, sc shadow.Change, err error)
	// Initial 返回覆盖全部当前状态的影子变化，用于加载后的第一次传播
	Initial() shadow.Change
	Validate() error
}
