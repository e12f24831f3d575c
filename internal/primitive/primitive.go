package primitive

import (
	"math"
	"time"
)

// Location 表示二维坐标（纬度、经度）
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// drivingSecondsPerDegree 把欧氏距离（度）换算为行驶秒数
const drivingSecondsPerDegree = 4000

// DrivingTimeTo 返回从 l 到 other 的行驶时间（秒），恰好为 .5 时舍入到偶数
func (l Location) DrivingTimeTo(other Location) int64 {
	dLat := l.Latitude - other.Latitude
	dLng := l.Longitude - other.Longitude
	return int64(math.RoundToEven(math.Sqrt(dLat*dLat+dLng*dLng) * drivingSecondsPerDegree))
}

// Interval 为左闭右开区间 [Start, End)
type Interval struct {
	Start int64
	End   int64
}

// Overlaps 判断两个左闭右开区间是否相交，端点相接不算相交
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// OverlapLength 返回两个区间交集的长度，不相交时为 0
func OverlapLength(a, b Interval) int64 {
	length := min(a.End, b.End) - max(a.Start, b.Start)
	if length < 0 {
		return 0
	}
	return length
}

// CeilMinutes 将时长向上取整到分钟，非正数返回 0
func CeilMinutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	minutes := int64(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// MinuteOverlap 返回两个时间段 [aStart, aEnd) 与 [bStart, bEnd) 重叠的分钟数
func MinuteOverlap(aStart, aEnd, bStart, bEnd time.Time) int64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Minute)
}
