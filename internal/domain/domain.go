package domain

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

var (
	// ErrUnresolvedReference 表示记录中引用的 id 无法解析
	ErrUnresolvedReference = errors.New("引用的对象不存在")
	ErrUnknownProblemType  = errors.New("未知的问题类型")
	ErrMalformedProblem    = errors.New("问题数据格式错误")
)

// Options 是加载问题时的评分选项
type Options struct {
	PropagationMode shadow.Mode
	// 参与 Room stability 约束的出席类型
	RoomStability []string
	Assertions    bool
	// 每次级联计算后回调访问的元素数量，可以为 nil
	ObservePropagation func(visited int)
}

func DefaultOptions() Options {
	return Options{
		PropagationMode: shadow.Memoized,
		RoomStability:   []string{"required"},
	}
}

func (o Options) DirectorOptions() []director.Option {
	return []director.Option{director.WithAssertions(o.Assertions)}
}

// Loader 把 JSON 格式的问题加载成可以评分的 Director
type Loader func(data []byte, opts Options) (*director.Director, error)

var (
	loadersMu sync.RWMutex
	loaders   = make(map[string]Loader)
)

// Register 注册一种问题类型，通常在适配器包的 init 中调用
func Register(problemType string, loader Loader) {
	loadersMu.Lock()
	defer loadersMu.Unlock()

	if loader == nil {
		panic("domain: Register loader is nil")
	}
	if _, dup := loaders[problemType]; dup {
		panic("domain: Register called twice for " + problemType)
	}
	loaders[problemType] = loader
}

func Load(problemType string, data []byte, opts Options) (*director.Director, error) {
	loadersMu.RLock()
	loader, ok := loaders[problemType]
	loadersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProblemType, problemType)
	}
	return loader(data, opts)
}

// Types 返回已注册的问题类型
func Types() []string {
	loadersMu.RLock()
	defer loadersMu.RUnlock()

	types := make([]string, 0, len(loaders))
	for t := range loaders {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
