package score

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedScore = errors.New("分数格式错误")

// Kind 表示分数的层级结构，每种问题类型固定一种
type Kind uint8

const (
	HardSoft Kind = iota + 1
	HardMediumSoft
)

const maxLevels = 3

type kindInfo struct {
	name       string
	levels     []string
	hardLevels int // 前 hardLevels 个层级属于 hard 及以上
}

var kinds = map[Kind]kindInfo{
	HardSoft:       {name: "HardSoft", levels: []string{"hard", "soft"}, hardLevels: 1},
	HardMediumSoft: {name: "HardMediumSoft", levels: []string{"hard", "medium", "soft"}, hardLevels: 1},
}

func (k Kind) info() kindInfo {
	info, ok := kinds[k]
	if !ok {
		panic(fmt.Sprintf("未知的分数类型 %d", k))
	}
	return info
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Levels 返回按严重程度从高到低排列的层级名称
func (k Kind) Levels() []string {
	return append([]string(nil), k.info().levels...)
}

// Zero 返回该类型的零分
func (k Kind) Zero() Score {
	k.info()
	return Score{kind: k}
}

// One 返回指定层级为 1、其余层级为 0 的分数
func (k Kind) One(level string) Score {
	return k.Of(level, 1)
}

// Of 返回指定层级为 n、其余层级为 0 的分数
func (k Kind) Of(level string, n int64) Score {
	for i, name := range k.info().levels {
		if name == level {
			s := Score{kind: k}
			s.levels[i] = n
			return s
		}
	}
	panic(fmt.Sprintf("分数类型 %s 不存在层级 %q", k, level))
}

// Score 是多层级分数，可以直接用 == 判断是否相等
type Score struct {
	kind   Kind
	levels [maxLevels]int64
}

// New 按严重程度从高到低传入各层级的值
func New(kind Kind, levels ...int64) Score {
	info := kind.info()
	if len(levels) != len(info.levels) {
		panic(fmt.Sprintf("分数类型 %s 需要 %d 个层级，实际传入 %d 个", kind, len(info.levels), len(levels)))
	}
	s := Score{kind: kind}
	copy(s.levels[:], levels)
	return s
}

func HardSoftOf(hard, soft int64) Score {
	return New(HardSoft, hard, soft)
}

func HardMediumSoftOf(hard, medium, soft int64) Score {
	return New(HardMediumSoft, hard, medium, soft)
}

func (s Score) Kind() Kind {
	return s.kind
}

// Levels 返回各层级的值，按严重程度从高到低
func (s Score) Levels() []int64 {
	return append([]int64(nil), s.levels[:len(s.kind.info().levels)]...)
}

// Level 返回指定名称层级的值
func (s Score) Level(name string) int64 {
	for i, level := range s.kind.info().levels {
		if level == name {
			return s.levels[i]
		}
	}
	panic(fmt.Sprintf("分数类型 %s 不存在层级 %q", s.kind, name))
}

func (s Score) mustMatch(other Score) {
	if s.kind != other.kind {
		panic(fmt.Sprintf("无法混用分数类型 %s 和 %s", s.kind, other.kind))
	}
}

func (s Score) Add(other Score) Score {
	s.mustMatch(other)
	for i := range s.levels {
		s.levels[i] += other.levels[i]
	}
	return s
}

func (s Score) Subtract(other Score) Score {
	s.mustMatch(other)
	for i := range s.levels {
		s.levels[i] -= other.levels[i]
	}
	return s
}

func (s Score) Negate() Score {
	for i := range s.levels {
		s.levels[i] = -s.levels[i]
	}
	return s
}

func (s Score) Multiply(n int64) Score {
	for i := range s.levels {
		s.levels[i] *= n
	}
	return s
}

// Compare 从最严重的层级开始逐级比较，返回 -1、0 或 1
func (s Score) Compare(other Score) int {
	s.mustMatch(other)
	for i := range s.levels {
		switch {
		case s.levels[i] < other.levels[i]:
			return -1
		case s.levels[i] > other.levels[i]:
			return 1
		}
	}
	return 0
}

// IsFeasible 当且仅当 hard 及以上所有层级都非负
func (s Score) IsFeasible() bool {
	for i := 0; i < s.kind.info().hardLevels; i++ {
		if s.levels[i] < 0 {
			return false
		}
	}
	return true
}

func (s Score) IsZero() bool {
	return s.levels == [maxLevels]int64{}
}

// String 输出形如 -2hard/0medium/-15soft 的文本
func (s Score) String() string {
	if s.kind == 0 {
		return ""
	}
	info := s.kind.info()
	parts := make([]string, len(info.levels))
	for i, name := range info.levels {
		parts[i] = strconv.FormatInt(s.levels[i], 10) + name
	}
	return strings.Join(parts, "/")
}

// Parse 解析分数文本，分数类型由各层级后缀推断
func Parse(text string) (Score, error) {
	parts := strings.Split(text, "/")
	for kind, info := range kinds {
		if len(info.levels) != len(parts) {
			continue
		}
		if !strings.HasSuffix(parts[len(parts)-1], info.levels[len(info.levels)-1]) {
			continue
		}
		if s, err := ParseKind(kind, text); err == nil {
			return s, nil
		}
	}
	return Score{}, fmt.Errorf("%w: %q", ErrMalformedScore, text)
}

// ParseKind 按指定的分数类型解析分数文本
func ParseKind(kind Kind, text string) (Score, error) {
	info, ok := kinds[kind]
	if !ok {
		return Score{}, fmt.Errorf("%w: 未知的分数类型 %d", ErrMalformedScore, kind)
	}

	parts := strings.Split(text, "/")
	if len(parts) != len(info.levels) {
		return Score{}, fmt.Errorf("%w: %q 应包含 %d 个层级", ErrMalformedScore, text, len(info.levels))
	}

	s := Score{kind: kind}
	for i, part := range parts {
		number, found := strings.CutSuffix(part, info.levels[i])
		if !found {
			return Score{}, fmt.Errorf("%w: %q 的第 %d 个层级缺少后缀 %q", ErrMalformedScore, text, i+1, info.levels[i])
		}
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil || !isCanonical(number) {
			return Score{}, fmt.Errorf("%w: %q 的第 %d 个层级不是整数", ErrMalformedScore, text, i+1)
		}
		s.levels[i] = n
	}

	return s, nil
}

// isCanonical 要求整数与 String 的输出一致：没有正号、没有前导零、没有 -0
func isCanonical(number string) bool {
	digits := strings.TrimPrefix(number, "-")
	if digits == "" || digits[0] == '+' {
		return false
	}
	if digits[0] == '0' {
		return number == "0"
	}
	return true
}

func (s Score) MarshalText() ([]byte, error) {
	if s.kind == 0 {
		return nil, errors.New("无法序列化未初始化的分数")
	}
	return []byte(s.String()), nil
}

func (s *Score) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
