package meeting

import (
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

// 事实集合名
const (
	People               = "people"
	TimeGrains           = "timeGrains"
	Rooms                = "rooms"
	RequiredAttendances  = "requiredAttendances"
	PreferredAttendances = "preferredAttendances"
	Assignments          = "meetingAssignments"
)

// 会议安排中两个分配关系各自修改的字段
const (
	AssignmentStartingTimeGrain = Assignments + ".startingTimeGrain"
	AssignmentRoom              = Assignments + ".room"
)

var (
	oneHard   = score.HardMediumSoft.One("hard")
	oneMedium = score.HardMediumSoft.One("medium")
	oneSoft   = score.HardMediumSoft.One("soft")
)

func assignmentAt(t constraint.Tuple, i int) *MeetingAssignment {
	return constraint.Arg[*MeetingAssignment](t, i)
}

func attendanceAt(t constraint.Tuple, i int) *Attendance {
	return constraint.Arg[*Attendance](t, i)
}

func attendanceCollection(kind AttendanceKind) string {
	if kind == Preferred {
		return PreferredAttendances
	}
	return RequiredAttendances
}

// 以元组第 i 个元素为会议安排的取值函数
func roomAt(i int) func(constraint.Tuple) *Room {
	return func(t constraint.Tuple) *Room { return assignmentAt(t, i).Room }
}

func startAt(i int) func(constraint.Tuple) int {
	return func(t constraint.Tuple) int { return assignmentAt(t, i).GrainIndex() }
}

func endAt(i int) func(constraint.Tuple) int {
	return func(t constraint.Tuple) int { return assignmentAt(t, i).LastGrainIndex() + 1 }
}

func lastGrainAt(i int) func(constraint.Tuple) int {
	return func(t constraint.Tuple) int { return assignmentAt(t, i).LastGrainIndex() }
}

func meetingIDAt(i int) func(constraint.Tuple) string {
	return func(t constraint.Tuple) string { return assignmentAt(t, i).Meeting.ID }
}

func attendanceMeetingAt(i int) func(constraint.Tuple) string {
	return func(t constraint.Tuple) string { return attendanceAt(t, i).MeetingID }
}

func attendancePersonAt(i int) func(constraint.Tuple) *Person {
	return func(t constraint.Tuple) *Person { return attendanceAt(t, i).Person }
}

func grainIndex(t constraint.Tuple) int {
	return constraint.Arg[*TimeGrain](t, 0).GrainIndex
}

func withStartingTimeGrain() *constraint.Stream {
	return constraint.ForEachIncludingUnassigned(Assignments).Filter(func(t constraint.Tuple) bool {
		return assignmentAt(t, 0).StartingTimeGrain != nil
	})
}

// overlapOfLast 计算元组最后两个会议安排的重叠长度
func overlapOfLast(t constraint.Tuple) int64 {
	n := len(t)
	return assignmentAt(t, n-1).Overlap(assignmentAt(t, n-2))
}

// Constraints 返回会议排程的全部约束，stability 决定 Room stability 对哪些出席类型生效
func Constraints(stability ...AttendanceKind) []*constraint.Constraint {
	cs := []*constraint.Constraint{
		roomConflict(),
		avoidOvertime(),
		attendanceConflict(Required, Required, oneHard, "Required attendance conflict"),
		requiredRoomCapacity(),
		startAndEndOnSameDay(),
		attendanceConflict(Required, Preferred, oneMedium, "Required and preferred attendance conflict"),
		attendanceConflict(Preferred, Preferred, oneMedium, "Preferred attendance conflict"),
		doMeetingsAsSoonAsPossible(),
		oneBreakBetweenConsecutiveMeetings(),
		overlappingMeetings(),
		assignLargerRoomsFirst(),
	}
	for _, kind := range stability {
		cs = append(cs, roomStability(kind))
	}
	return cs
}

func roomConflict() *constraint.Constraint {
	return constraint.ForEachUniquePair(Assignments,
		constraint.EqualBy(roomAt(0)),
		constraint.OverlappingBy(startAt(0), endAt(0)),
	).PenalizeBy("Room conflict", oneHard, overlapOfLast)
}

func avoidOvertime() *constraint.Constraint {
	return withStartingTimeGrain().
		IfNotExists(constraint.ForEach(TimeGrains), constraint.Equal(lastGrainAt(0), grainIndex)).
		PenalizeBy("Don't go in overtime", oneHard, func(t constraint.Tuple) int64 {
			return int64(assignmentAt(t, 0).LastGrainIndex())
		}).
		DependsOn(AssignmentStartingTimeGrain)
}

// attendanceConflict 惩罚同一个人出席的两个会议在时间上重叠
func attendanceConflict(left, right AttendanceKind, weight score.Score, name string) *constraint.Constraint {
	var pairs *constraint.Stream
	if left == right {
		pairs = constraint.ForEachUniquePair(attendanceCollection(left), constraint.EqualBy(attendancePersonAt(0)))
	} else {
		pairs = constraint.ForEach(attendanceCollection(left)).
			Join(constraint.ForEach(attendanceCollection(right)), constraint.Equal(attendancePersonAt(0), attendancePersonAt(0)))
	}

	return pairs.
		Join(constraint.ForEach(Assignments), constraint.Equal(attendanceMeetingAt(0), meetingIDAt(0))).
		Join(constraint.ForEach(Assignments),
			constraint.Equal(attendanceMeetingAt(1), meetingIDAt(0)),
			constraint.Overlapping(startAt(2), endAt(2), startAt(0), endAt(0)),
		).
		PenalizeBy(name, weight, overlapOfLast)
}

func requiredRoomCapacity() *constraint.Constraint {
	return constraint.ForEachIncludingUnassigned(Assignments).
		Filter(func(t constraint.Tuple) bool {
			a := assignmentAt(t, 0)
			return a.RequiredCapacity() > a.RoomCapacity()
		}).
		PenalizeBy("Required room capacity", oneHard, func(t constraint.Tuple) int64 {
			a := assignmentAt(t, 0)
			return int64(a.RequiredCapacity() - a.RoomCapacity())
		}).
		DependsOn(AssignmentRoom)
}

func startAndEndOnSameDay() *constraint.Constraint {
	return withStartingTimeGrain().
		Join(constraint.ForEach(TimeGrains),
			constraint.Equal(lastGrainAt(0), grainIndex),
			constraint.Filtering(func(left, right constraint.Tuple) bool {
				return assignmentAt(left, 0).StartingTimeGrain.DayOfYear != constraint.Arg[*TimeGrain](right, 0).DayOfYear
			}),
		).
		Penalize("Start and end on same day", oneHard).
		DependsOn(AssignmentStartingTimeGrain)
}

func doMeetingsAsSoonAsPossible() *constraint.Constraint {
	return withStartingTimeGrain().
		PenalizeBy("Do all meetings as soon as possible", oneSoft, func(t constraint.Tuple) int64 {
			return int64(assignmentAt(t, 0).LastGrainIndex())
		}).
		DependsOn(AssignmentStartingTimeGrain)
}

func oneBreakBetweenConsecutiveMeetings() *constraint.Constraint {
	return withStartingTimeGrain().
		Join(withStartingTimeGrain(), constraint.Equal(lastGrainAt(0), func(t constraint.Tuple) int {
			return assignmentAt(t, 0).GrainIndex() - 1
		})).
		Penalize("One TimeGrain break between two consecutive meetings", score.HardMediumSoft.Of("soft", 100)).
		DependsOn(AssignmentStartingTimeGrain)
}

func overlappingMeetings() *constraint.Constraint {
	return withStartingTimeGrain().
		Join(withStartingTimeGrain(),
			constraint.GreaterThan(meetingIDAt(0), meetingIDAt(0)),
			constraint.OverlappingBy(startAt(0), endAt(0)),
		).
		PenalizeBy("Overlapping meetings", score.HardMediumSoft.Of("soft", 10), func(t constraint.Tuple) int64 {
			return assignmentAt(t, 0).Overlap(assignmentAt(t, 1))
		}).
		DependsOn(AssignmentStartingTimeGrain)
}

func assignLargerRoomsFirst() *constraint.Constraint {
	roomCapacity := func(t constraint.Tuple) int { return assignmentAt(t, 0).RoomCapacity() }
	capacity := func(t constraint.Tuple) int { return constraint.Arg[*Room](t, 0).Capacity }

	return constraint.ForEachIncludingUnassigned(Assignments).
		Filter(func(t constraint.Tuple) bool { return assignmentAt(t, 0).Room != nil }).
		Join(constraint.ForEach(Rooms), constraint.LessThan(roomCapacity, capacity)).
		PenalizeBy("Assign larger rooms first", oneSoft, func(t constraint.Tuple) int64 {
			return int64(constraint.Arg[*Room](t, 1).Capacity - assignmentAt(t, 0).RoomCapacity())
		}).
		DependsOn(AssignmentRoom)
}

// roomStability 惩罚同一个人在相隔不超过两个时间粒度的会议之间更换会议室
func roomStability(kind AttendanceKind) *constraint.Constraint {
	name := "Room stability"
	if kind != Required {
		name += " (" + kind.String() + ")"
	}
	collection := attendanceCollection(kind)

	return constraint.ForEach(collection).
		Join(constraint.ForEach(collection),
			constraint.Equal(attendancePersonAt(0), attendancePersonAt(0)),
			constraint.Filtering(func(left, right constraint.Tuple) bool {
				return attendanceAt(left, 0).MeetingID != attendanceAt(right, 0).MeetingID
			}),
		).
		Join(constraint.ForEach(Assignments), constraint.Equal(attendanceMeetingAt(0), meetingIDAt(0))).
		Join(constraint.ForEach(Assignments),
			constraint.Equal(attendanceMeetingAt(1), meetingIDAt(0)),
			constraint.LessThan(startAt(2), startAt(0)),
			constraint.Filtering(func(left, right constraint.Tuple) bool {
				return assignmentAt(left, 2).Room != assignmentAt(right, 0).Room
			}),
			constraint.Filtering(func(left, right constraint.Tuple) bool {
				first, second := assignmentAt(left, 2), assignmentAt(right, 0)
				return second.GrainIndex()-first.Meeting.DurationInGrains-first.GrainIndex() <= 2
			}),
		).
		Penalize(name, oneSoft)
}
