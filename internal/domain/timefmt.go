package domain

import (
	"fmt"
	"time"
)

var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// ParseDateTime 解析 ISO 8601 格式的时间，没有时区时按 UTC 处理
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: 无法解析时间 %q", ErrMalformedProblem, s)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: 无法解析日期 %q", ErrMalformedProblem, s)
	}
	return t, nil
}
