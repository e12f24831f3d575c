package rostering

import (
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/primitive"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

const (
	Employees    = "employees"
	Shifts       = "shifts"
	Unavailables = "unavailableDates"
	Undesireds   = "undesiredDates"
	Desireds     = "desiredDates"
	minimumBreak = 10 * 60
)

var (
	oneHard = score.HardSoft.One("hard")
	oneSoft = score.HardSoft.One("soft")
)

func shiftAt(t constraint.Tuple, i int) *Shift {
	return constraint.Arg[*Shift](t, i)
}

func employeeOf(t constraint.Tuple) *Employee { return shiftAt(t, 0).Employee }
func startOf(t constraint.Tuple) int64        { return shiftAt(t, 0).Start.Unix() }
func endOf(t constraint.Tuple) int64          { return shiftAt(t, 0).End.Unix() }
func dayOf(t constraint.Tuple) string         { return shiftAt(t, 0).Day() }

func availabilityCollection(kind AvailabilityKind) string {
	switch kind {
	case Unavailable:
		return Unavailables
	case Undesired:
		return Undesireds
	default:
		return Desireds
	}
}

func Constraints() []*constraint.Constraint {
	return []*constraint.Constraint{
		requiredSkill(),
		noOverlappingShifts(),
		atLeast10HoursBetweenTwoShifts(),
		oneShiftPerDay(),
		availability(Unavailable, "Unavailable employee", oneHard),
		availability(Undesired, "Undesired day for employee", oneSoft),
		availability(Desired, "Desired day for employee", oneSoft),
		balanceEmployeeShiftAssignments(),
	}
}

func requiredSkill() *constraint.Constraint {
	return constraint.ForEach(Shifts).
		Filter(func(t constraint.Tuple) bool {
			s := shiftAt(t, 0)
			return !s.Employee.HasSkill(s.RequiredSkill)
		}).
		Penalize("Missing required skill", oneHard)
}

func noOverlappingShifts() *constraint.Constraint {
	return constraint.ForEachUniquePair(Shifts,
		constraint.EqualBy(employeeOf),
		constraint.OverlappingBy(startOf, endOf),
	).PenalizeBy("Overlapping shift", oneHard, func(t constraint.Tuple) int64 {
		a, b := shiftAt(t, 0), shiftAt(t, 1)
		return primitive.MinuteOverlap(a.Start, a.End, b.Start, b.End)
	})
}

// breakMinutes 是前一个班次结束到后一个班次开始的分钟数
func breakMinutes(t constraint.Tuple) int64 {
	return int64(shiftAt(t, 1).Start.Sub(shiftAt(t, 0).End).Minutes())
}

// 有序地连接两个班次，因此无论加载顺序如何都能找到前后相邻的一对
func atLeast10HoursBetweenTwoShifts() *constraint.Constraint {
	return constraint.ForEach(Shifts).
		Join(constraint.ForEach(Shifts),
			constraint.EqualBy(employeeOf),
			constraint.LessThanOrEqual(endOf, startOf),
		).
		Filter(func(t constraint.Tuple) bool { return breakMinutes(t) < minimumBreak }).
		PenalizeBy("At least 10 hours between 2 shifts", oneHard, func(t constraint.Tuple) int64 {
			return minimumBreak - breakMinutes(t)
		})
}

func oneShiftPerDay() *constraint.Constraint {
	return constraint.ForEachUniquePair(Shifts,
		constraint.EqualBy(employeeOf),
		constraint.EqualBy(dayOf),
	).Penalize("Max one shift per day", oneHard)
}

func availability(kind AvailabilityKind, name string, weight score.Score) *constraint.Constraint {
	stream := constraint.ForEach(Shifts).
		Join(constraint.ForEach(availabilityCollection(kind)),
			constraint.Equal(employeeOf, func(t constraint.Tuple) *Employee {
				return constraint.Arg[*Availability](t, 0).Employee
			}),
			constraint.Filtering(func(left, right constraint.Tuple) bool {
				return constraint.Arg[*Availability](right, 0).Overlap(shiftAt(left, 0)) > 0
			}),
		)
	overlap := func(t constraint.Tuple) int64 {
		return constraint.Arg[*Availability](t, 1).Overlap(shiftAt(t, 0))
	}

	if kind == Desired {
		return stream.RewardBy(name, weight, overlap)
	}
	return stream.PenalizeBy(name, weight, overlap)
}

// balanceEmployeeShiftAssignments 按每个员工班次数的平方惩罚，班次总数一定时分配越平均分数越高
func balanceEmployeeShiftAssignments() *constraint.Constraint {
	return constraint.ForEach(Employees).
		Filter(func(t constraint.Tuple) bool { return constraint.Arg[*Employee](t, 0).ShiftCount > 0 }).
		PenalizeBy("Balance employee shift assignments", oneSoft, func(t constraint.Tuple) int64 {
			n := int64(constraint.Arg[*Employee](t, 0).ShiftCount)
			return n * n
		})
}
