package rostering

import (
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/primitive"
)

type Employee struct {
	Name   string
	Skills []string
	// 影子属性：当前分配到的班次数量
	ShiftCount int
}

func (e *Employee) HasSkill(skill string) bool {
	return slices.Contains(e.Skills, skill)
}

type AvailabilityKind int

const (
	Unavailable AvailabilityKind = iota + 1
	Undesired
	Desired
)

// Availability 是员工对某一天的意愿，加载时从员工记录中展开
type Availability struct {
	Kind     AvailabilityKind
	Employee *Employee
	Date     time.Time
}

// Overlap 返回班次与这一天重叠的分钟数，这一天按班次开始时间的时区计算
func (a *Availability) Overlap(s *Shift) int64 {
	loc := s.Start.Location()
	dayStart := time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, loc)
	return primitive.MinuteOverlap(s.Start, s.End, dayStart, dayStart.AddDate(0, 0, 1))
}

type Shift struct {
	ID            string
	Start         time.Time
	End           time.Time
	Location      string
	RequiredSkill string
	Employee      *Employee
}

func (s *Shift) IsAssigned() bool {
	return s.Employee != nil
}

func (s *Shift) Day() string {
	return s.Start.Format(time.DateOnly)
}

func (e *Employee) PlanningID() string { return e.Name }
func (s *Shift) PlanningID() string    { return s.ID }
func (a *Availability) PlanningID() string {
	return a.Employee.Name + "@" + a.Date.Format(time.DateOnly)
}

// Schedule 是一个完整的排班问题
type Schedule struct {
	Employees    []*Employee
	Shifts       []*Shift
	Availability []*Availability
}
