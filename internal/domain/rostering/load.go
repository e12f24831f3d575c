package rostering

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/graph"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/validation"
)

const (
	ProblemType         = "rostering"
	EmployeeRelation    = "employee"
	shiftCountAttribute = "employee.shiftCount"
)

func init() {
	domain.Register(ProblemType, Load)
}

var validator = sync.OnceValues(validation.New)

type employeeRecord struct {
	Name             string   `json:"name" validate:"required"`
	Skills           []string `json:"skills"`
	UnavailableDates []string `json:"unavailableDates" validate:"dive,datetime=2006-01-02"`
	UndesiredDates   []string `json:"undesiredDates" validate:"dive,datetime=2006-01-02"`
	DesiredDates     []string `json:"desiredDates" validate:"dive,datetime=2006-01-02"`
}

type shiftRecord struct {
	ID            string  `json:"id" validate:"required"`
	Start         string  `json:"start" validate:"required"`
	End           string  `json:"end" validate:"required"`
	Location      string  `json:"location"`
	RequiredSkill string  `json:"requiredSkill" validate:"required"`
	Employee      *string `json:"employee"`
}

type scheduleRecord struct {
	Employees []employeeRecord `json:"employees" validate:"dive"`
	Shifts    []shiftRecord    `json:"shifts" validate:"dive"`
}

// Parse 解析并校验 JSON 格式的排班问题，班次引用的员工必须存在
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
	employees := make(map[string]*Employee, len(rec.Employees))
	for _, r := range rec.Employees {
		if _, exists := employees[r.Name]; exists {
			return nil, fmt.Errorf("%w: 员工 %q 重复", domain.ErrMalformedProblem, r.Name)
		}
		e := &Employee{Name: r.Name, Skills: r.Skills}
		employees[r.Name] = e
		s.Employees = append(s.Employees, e)

		for _, group := range []struct {
			kind  AvailabilityKind
			dates []string
		}{
			{Unavailable, r.UnavailableDates},
			{Undesired, r.UndesiredDates},
			{Desired, r.DesiredDates},
		} {
			for _, d := range group.dates {
				date, err := domain.ParseDate(d)
				if err != nil {
					return nil, err
				}
				s.Availability = append(s.Availability, &Availability{Kind: group.kind, Employee: e, Date: date})
			}
		}
	}

	ids := make(map[string]struct{}, len(rec.Shifts))
	for _, r := range rec.Shifts {
		if _, exists := ids[r.ID]; exists {
			return nil, fmt.Errorf("%w: 班次 %q 重复", domain.ErrMalformedProblem, r.ID)
		}
		ids[r.ID] = struct{}{}

		start, err := domain.ParseDateTime(r.Start)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseDateTime(r.End)
		if err != nil {
			return nil, err
		}
		if !end.After(start) {
			return nil, fmt.Errorf("%w: 班次 %q 的结束时间不晚于开始时间", domain.ErrMalformedProblem, r.ID)
		}

		shift := &Shift{ID: r.ID, Start: start, End: end, Location: r.Location, RequiredSkill: r.RequiredSkill}
		if r.Employee != nil {
			e, ok := employees[*r.Employee]
			if !ok {
				return nil, fmt.Errorf("%w: 班次 %s 引用了不存在的员工 %q", domain.ErrUnresolvedReference, r.ID, *r.Employee)
			}
			shift.Employee = e
		}
		s.Shifts = append(s.Shifts, shift)
	}

	return s, nil
}

func (s *Schedule) Facts() constraint.FactSet {
	facts := constraint.FactSet{
		Employees: make([]any, len(s.Employees)),
		Shifts:    make([]any, len(s.Shifts)),
	}
	for i, e := range s.Employees {
		facts[Employees][i] = e
	}
	for i, shift := range s.Shifts {
		facts[Shifts][i] = shift
	}
	for _, a := range s.Availability {
		name := availabilityCollection(a.Kind)
		facts[name] = append(facts[name], a)
	}
	return facts
}

func NewDirector(s *Schedule, opts domain.Options) (*director.Director, error) {
	link, err := graph.NewSingleLink(graph.LinkConfig[*Shift, *Employee]{
		Name:     EmployeeRelation,
		Touches:  []string{Shifts, Employees},
		Entities: s.Shifts,
		Values:   s.Employees,
		Get:      func(shift *Shift) *Employee { return shift.Employee },
		Set:      func(shift *Shift, e *Employee) { shift.Employee = e },
	})
	if err != nil {
		return nil, err
	}

	engine, err := shadow.New(shadow.Attribute{
		Name:      shiftCountAttribute,
		DependsOn: []string{EmployeeRelation},
		// 只有变更前后的员工需要重新计数
		Refresh: func(ch shadow.Change) {
			for _, owner := range ch.Owners {
				e := owner.(*Employee)
				e.ShiftCount = link.Count(e)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	return director.New(director.Solution{
		Kind:        score.HardSoft,
		Facts:       s.Facts(),
		Relations:   []graph.Relation{link},
		Shadows:     engine,
		Constraints: Constraints(),
	}, opts.DirectorOptions()...)
}

func Load(data []byte, opts domain.Options) (*director.Director, error) {
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewDirector(s, opts)
}
