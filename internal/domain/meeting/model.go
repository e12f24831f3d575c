package meeting

import (
	"fmt"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/primitive"
)

// GrainLengthInMinutes 是时间粒度的长度
const GrainLengthInMinutes = 15

const minutesPerDay = 24 * 60

type Person struct {
	ID       string
	FullName string
}

type TimeGrain struct {
	ID                  string
	GrainIndex          int
	DayOfYear           int
	StartingMinuteOfDay int
}

// EndingMinuteOfDay 是时间粒度结束时的分钟数
func (g *TimeGrain) EndingMinuteOfDay() int {
	return g.StartingMinuteOfDay + GrainLengthInMinutes
}

type Room struct {
	ID       string
	Name     string
	Capacity int
}

type AttendanceKind int

const (
	Required AttendanceKind = iota + 1
	Preferred
)

func (k AttendanceKind) String() string {
	switch k {
	case Required:
		return "required"
	case Preferred:
		return "preferred"
	default:
		return fmt.Sprintf("AttendanceKind(%d)", int(k))
	}
}

func ParseAttendanceKind(s string) (AttendanceKind, error) {
	switch s {
	case "required":
		return Required, nil
	case "preferred":
		return Preferred, nil
	default:
		return 0, fmt.Errorf("未知的出席类型 %q", s)
	}
}

// Attendance 表示某人必须或希望出席某个会议
type Attendance struct {
	ID        string
	Kind      AttendanceKind
	Person    *Person
	MeetingID string
}

type Meeting struct {
	ID                   string
	Topic                string
	DurationInGrains     int
	RequiredAttendances  []*Attendance
	PreferredAttendances []*Attendance
}

// RequiredCapacity 是必须出席与希望出席的人数之和
func (m *Meeting) RequiredCapacity() int {
	return len(m.RequiredAttendances) + len(m.PreferredAttendances)
}

// MeetingAssignment 是规划实体，开始时间和会议室是两个独立的分配关系
type MeetingAssignment struct {
	ID                string
	Meeting           *Meeting
	Pinned            bool
	StartingTimeGrain *TimeGrain
	Room              *Room
}

func (a *MeetingAssignment) IsAssigned() bool {
	return a.StartingTimeGrain != nil && a.Room != nil
}

// 以下方法要求已经分配了开始时间
func (a *MeetingAssignment) GrainIndex() int {
	return a.StartingTimeGrain.GrainIndex
}

func (a *MeetingAssignment) LastGrainIndex() int {
	return a.StartingTimeGrain.GrainIndex + a.Meeting.DurationInGrains - 1
}

func (a *MeetingAssignment) interval() primitive.Interval {
	return primitive.Interval{Start: int64(a.GrainIndex()), End: int64(a.LastGrainIndex() + 1)}
}

// Overlap 返回两个会议重叠的时间粒度数，任一方没有开始时间时为 0
func (a *MeetingAssignment) Overlap(other *MeetingAssignment) int64 {
	if a.StartingTimeGrain == nil || other.StartingTimeGrain == nil {
		return 0
	}
	return primitive.OverlapLength(a.interval(), other.interval())
}

func (a *MeetingAssignment) RoomCapacity() int {
	if a.Room == nil {
		return 0
	}
	return a.Room.Capacity
}

func (a *MeetingAssignment) RequiredCapacity() int {
	return a.Meeting.RequiredCapacity()
}

func (p *Person) PlanningID() string            { return p.ID }
func (g *TimeGrain) PlanningID() string         { return g.ID }
func (r *Room) PlanningID() string              { return r.ID }
func (a *Attendance) PlanningID() string        { return a.ID }
func (a *MeetingAssignment) PlanningID() string { return a.ID }

// Schedule 是一个完整的会议排程问题
type Schedule struct {
	People               []*Person
	TimeGrains           []*TimeGrain
	Rooms                []*Room
	Meetings             []*Meeting
	RequiredAttendances  []*Attendance
	PreferredAttendances []*Attendance
	Assignments          []*MeetingAssignment
}
