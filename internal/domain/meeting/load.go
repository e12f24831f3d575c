package meeting

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/graph"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/validation"
)

const ProblemType = "meeting"

// 关系名
const (
	StartingTimeGrainRelation = "startingTimeGrain"
	RoomRelation              = "room"
)

func init() {
	domain.Register(ProblemType, Load)
}

var validator = sync.OnceValues(validation.New)

type personRecord struct {
	ID       string `json:"id" validate:"required"`
	FullName string `json:"fullName"`
}

type timeGrainRecord struct {
	ID                  string `json:"id" validate:"required"`
	GrainIndex          int    `json:"grainIndex" validate:"gte=0"`
	DayOfYear           int    `json:"dayOfYear" validate:"gte=0,lte=366"`
	StartingMinuteOfDay int    `json:"startingMinuteOfDay" validate:"gte=0,lt=1440"`
}

type roomRecord struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

type meetingRecord struct {
	ID               string `json:"id" validate:"required"`
	Topic            string `json:"topic"`
	DurationInGrains int    `json:"durationInGrains" validate:"gt=0"`
}

type attendanceRecord struct {
	ID      string `json:"id" validate:"required"`
	Person  string `json:"person" validate:"required"`
	Meeting string `json:"meeting" validate:"required"`
}

type assignmentRecord struct {
	ID                string  `json:"id" validate:"required"`
	Meeting           string  `json:"meeting" validate:"required"`
	Pinned            bool    `json:"pinned"`
	StartingTimeGrain *string `json:"startingTimeGrain"`
	Room              *string `json:"room"`
}

type scheduleRecord struct {
	People               []personRecord     `json:"people" validate:"dive"`
	TimeGrains           []timeGrainRecord  `json:"timeGrains" validate:"dive"`
	Rooms                []roomRecord       `json:"rooms" validate:"dive"`
	Meetings             []meetingRecord    `json:"meetings" validate:"dive"`
	RequiredAttendances  []attendanceRecord `json:"requiredAttendances" validate:"dive"`
	PreferredAttendances []attendanceRecord `json:"preferredAttendances" validate:"dive"`
	MeetingAssignments   []assignmentRecord `json:"meetingAssignments" validate:"dive"`
}

// index 按 id 建立索引，id 重复时返回错误
func index[T any](kind string, items []T, id func(T) string) (map[string]T, error) {
	m := make(map[string]T, len(items))
	for _, item := range items {
		if _, exists := m[id(item)]; exists {
			return nil, fmt.Errorf("%w: %s 的 id %q 重复", domain.ErrMalformedProblem, kind, id(item))
		}
		m[id(item)] = item
	}
	return m, nil
}

func resolve[T any](m map[string]T, kind, id, owner string) (T, error) {
	v, ok := m[id]
	if !ok {
		return v, fmt.Errorf("%w: %s 引用了不存在的 %s %q", domain.ErrUnresolvedReference, owner, kind, id)
	}
	return v, nil
}

// Parse 解析并校验 JSON 格式的会议排程，所有 id 引用都必须能够解析
func Parse(data []byte) (*Schedule, error) {
	var rec scheduleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedProblem, err)
	}
	v, err := validator()
	if err != nil {
		return nil, err
	}
	if err := v.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedProblem, err)
	}

	s := &Schedule{}
	for _, r := range rec.People {
		s.People = append(s.People, &Person{ID: r.ID, FullName: r.FullName})
	}
	for _, r := range rec.TimeGrains {
		g := &TimeGrain{
			ID:                  r.ID,
			GrainIndex:          r.GrainIndex,
			DayOfYear:           r.DayOfYear,
			StartingMinuteOfDay: r.StartingMinuteOfDay,
		}
		if g.EndingMinuteOfDay() > minutesPerDay {
			return nil, fmt.Errorf("%w: 时间粒度 %q 跨越了午夜", domain.ErrMalformedProblem, g.ID)
		}
		s.TimeGrains = append(s.TimeGrains, g)
	}
	for _, r := range rec.Rooms {
		s.Rooms = append(s.Rooms, &Room{ID: r.ID, Name: r.Name, Capacity: r.Capacity})
	}
	for _, r := range rec.Meetings {
		s.Meetings = append(s.Meetings, &Meeting{ID: r.ID, Topic: r.Topic, DurationInGrains: r.DurationInGrains})
	}

	people, err := index("person", s.People, func(p *Person) string { return p.ID })
	if err != nil {
		return nil, err
	}
	grains, err := index("timeGrain", s.TimeGrains, func(g *TimeGrain) string { return g.ID })
	if err != nil {
		return nil, err
	}
	rooms, err := index("room", s.Rooms, func(r *Room) string { return r.ID })
	if err != nil {
		return nil, err
	}
	meetings, err := index("meeting", s.Meetings, func(m *Meeting) string { return m.ID })
	if err != nil {
		return nil, err
	}

	attendanceIDs := make(map[string]struct{})
	attend := func(records []attendanceRecord, kind AttendanceKind) ([]*Attendance, error) {
		var result []*Attendance
		for _, r := range records {
			if _, exists := attendanceIDs[r.ID]; exists {
				return nil, fmt.Errorf("%w: attendance 的 id %q 重复", domain.ErrMalformedProblem, r.ID)
			}
			attendanceIDs[r.ID] = struct{}{}

			owner := "attendance " + r.ID
			person, err := resolve(people, "person", r.Person, owner)
			if err != nil {
				return nil, err
			}
			m, err := resolve(meetings, "meeting", r.Meeting, owner)
			if err != nil {
				return nil, err
			}

			for _, existing := range slices.Concat(m.RequiredAttendances, m.PreferredAttendances) {
				if existing.Person == person {
					return nil, fmt.Errorf("%w: %s 已经出席会议 %s", domain.ErrMalformedProblem, person.ID, m.ID)
				}
			}

			a := &Attendance{ID: r.ID, Kind: kind, Person: person, MeetingID: m.ID}
			if kind == Required {
				m.RequiredAttendances = append(m.RequiredAttendances, a)
			} else {
				m.PreferredAttendances = append(m.PreferredAttendances, a)
			}
			result = append(result, a)
		}
		return result, nil
	}
	if s.RequiredAttendances, err = attend(rec.RequiredAttendances, Required); err != nil {
		return nil, err
	}
	if s.PreferredAttendances, err = attend(rec.PreferredAttendances, Preferred); err != nil {
		return nil, err
	}

	assignmentIDs := make(map[string]struct{})
	for _, r := range rec.MeetingAssignments {
		if _, exists := assignmentIDs[r.ID]; exists {
			return nil, fmt.Errorf("%w: meetingAssignment 的 id %q 重复", domain.ErrMalformedProblem, r.ID)
		}
		assignmentIDs[r.ID] = struct{}{}

		owner := "meetingAssignment " + r.ID
		m, err := resolve(meetings, "meeting", r.Meeting, owner)
		if err != nil {
			return nil, err
		}
		a := &MeetingAssignment{ID: r.ID, Meeting: m, Pinned: r.Pinned}
		if r.StartingTimeGrain != nil {
			if a.StartingTimeGrain, err = resolve(grains, "timeGrain", *r.StartingTimeGrain, owner); err != nil {
				return nil, err
			}
		}
		if r.Room != nil {
			if a.Room, err = resolve(rooms, "room", *r.Room, owner); err != nil {
				return nil, err
			}
		}
		s.Assignments = append(s.Assignments, a)
	}

	return s, nil
}

func anySlice[T any](items []T) []any {
	result := make([]any, len(items))
	for i, item := range items {
		result[i] = item
	}
	return result
}

func (s *Schedule) Facts() constraint.FactSet {
	return constraint.FactSet{
		People:               anySlice(s.People),
		TimeGrains:           anySlice(s.TimeGrains),
		Rooms:                anySlice(s.Rooms),
		RequiredAttendances:  anySlice(s.RequiredAttendances),
		PreferredAttendances: anySlice(s.PreferredAttendances),
		Assignments:          anySlice(s.Assignments),
	}
}

func isPinned(a *MeetingAssignment) bool {
	return a.Pinned
}

// NewDirector 为排程建立开始时间和会议室两个分配关系
func NewDirector(s *Schedule, opts domain.Options) (*director.Director, error) {
	var stability []AttendanceKind
	for _, name := range opts.RoomStability {
		kind, err := ParseAttendanceKind(name)
		if err != nil {
			return nil, err
		}
		stability = append(stability, kind)
	}

	grainLink, err := graph.NewSingleLink(graph.LinkConfig[*MeetingAssignment, *TimeGrain]{
		Name:     StartingTimeGrainRelation,
		Touches:  []string{AssignmentStartingTimeGrain},
		Entities: s.Assignments,
		Values:   s.TimeGrains,
		Get:      func(a *MeetingAssignment) *TimeGrain { return a.StartingTimeGrain },
		Set:      func(a *MeetingAssignment, g *TimeGrain) { a.StartingTimeGrain = g },
		Pinned:   isPinned,
	})
	if err != nil {
		return nil, err
	}
	roomLink, err := graph.NewSingleLink(graph.LinkConfig[*MeetingAssignment, *Room]{
		Name:     RoomRelation,
		Touches:  []string{AssignmentRoom},
		Entities: s.Assignments,
		Values:   s.Rooms,
		Get:      func(a *MeetingAssignment) *Room { return a.Room },
		Set:      func(a *MeetingAssignment, r *Room) { a.Room = r },
		Pinned:   isPinned,
	})
	if err != nil {
		return nil, err
	}

	return director.New(director.Solution{
		Kind:        score.HardMediumSoft,
		Facts:       s.Facts(),
		Relations:   []graph.Relation{grainLink, roomLink},
		Constraints: Constraints(stability...),
	}, opts.DirectorOptions()...)
}

func Load(data []byte, opts domain.Options) (*director.Director, error) {
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewDirector(s, opts)
}
