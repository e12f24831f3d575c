package routing

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/graph"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/primitive"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/validation"
)

const (
	ProblemType      = "routing"
	VisitsRelation   = "visits"
	arrivalAttribute = "visit.arrivalTime"
	routeAttribute   = "vehicle.visits"
)

func init() {
	domain.Register(ProblemType, Load)
}

var validator = sync.OnceValues(validation.New)

type vehicleRecord struct {
	ID            string    `json:"id" validate:"required"`
	Capacity      int       `json:"capacity" validate:"gte=0"`
	HomeLocation  []float64 `json:"homeLocation" validate:"len=2"`
	DepartureTime string    `json:"departureTime" validate:"required"`
	Visits        []string  `json:"visits"`
}

type visitRecord struct {
	ID              string    `json:"id" validate:"required"`
	Name            string    `json:"name"`
	Location        []float64 `json:"location" validate:"len=2"`
	Demand          int       `json:"demand" validate:"gte=0"`
	MinStartTime    string    `json:"minStartTime" validate:"required"`
	MaxEndTime      string    `json:"maxEndTime" validate:"required"`
	ServiceDuration int64     `json:"serviceDuration" validate:"gte=0"` // 秒
}

type planRecord struct {
	Name            string          `json:"name"`
	SouthWestCorner []float64       `json:"southWestCorner" validate:"omitempty,len=2"`
	NorthEastCorner []float64       `json:"northEastCorner" validate:"omitempty,len=2"`
	Vehicles        []vehicleRecord `json:"vehicles" validate:"dive"`
	Visits          []visitRecord   `json:"visits" validate:"dive"`
}

func location(pair []float64) primitive.Location {
	if len(pair) != 2 {
		return primitive.Location{}
	}
	return primitive.Location{Latitude: pair[0], Longitude: pair[1]}
}

// Parse 解析并校验 JSON 格式的路径问题，routes 记录每辆车的初始路线
func Parse(data []byte) (*Plan, map[*Vehicle][]*Visit, error) {
	var rec planRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrMalformedProblem, err)
	}
	v, err := validator()
	if err != nil {
		return nil, nil, err
	}
	if err := v.Struct(rec); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrMalformedProblem, err)
	}

	p := &Plan{
		Name:            rec.Name,
		SouthWestCorner: location(rec.SouthWestCorner),
		NorthEastCorner: location(rec.NorthEastCorner),
	}

	visits := make(map[string]*Visit, len(rec.Visits))
	for _, r := range rec.Visits {
		if _, exists := visits[r.ID]; exists {
			return nil, nil, fmt.Errorf("%w: 访问点 %q 重复", domain.ErrMalformedProblem, r.ID)
		}
		minStart, err := domain.ParseDateTime(r.MinStartTime)
		if err != nil {
			return nil, nil, err
		}
		maxEnd, err := domain.ParseDateTime(r.MaxEndTime)
		if err != nil {
			return nil, nil, err
		}

		visit := &Visit{
			ID:              r.ID,
			Name:            r.Name,
			Location:        location(r.Location),
			Demand:          r.Demand,
			MinStartTime:    minStart,
			MaxEndTime:      maxEnd,
			ServiceDuration: time.Duration(r.ServiceDuration) * time.Second,
		}
		visits[r.ID] = visit
		p.Visits = append(p.Visits, visit)
	}

	routes := make(map[*Vehicle][]*Visit, len(rec.Vehicles))
	vehicleIDs := make(map[string]struct{}, len(rec.Vehicles))
	routed := make(map[*Visit]string)
	for _, r := range rec.Vehicles {
		if _, exists := vehicleIDs[r.ID]; exists {
			return nil, nil, fmt.Errorf("%w: 车辆 %q 重复", domain.ErrMalformedProblem, r.ID)
		}
		vehicleIDs[r.ID] = struct{}{}

		departure, err := domain.ParseDateTime(r.DepartureTime)
		if err != nil {
			return nil, nil, err
		}
		vehicle := &Vehicle{
			ID:            r.ID,
			Capacity:      r.Capacity,
			HomeLocation:  location(r.HomeLocation),
			DepartureTime: departure,
		}
		p.Vehicles = append(p.Vehicles, vehicle)

		for _, id := range r.Visits {
			visit, ok := visits[id]
			if !ok {
				return nil, nil, fmt.Errorf("%w: 车辆 %s 引用了不存在的访问点 %q", domain.ErrUnresolvedReference, r.ID, id)
			}
			if owner, exists := routed[visit]; exists {
				return nil, nil, fmt.Errorf("%w: 访问点 %q 同时出现在车辆 %s 和 %s 的路线中", domain.ErrMalformedProblem, id, owner, r.ID)
			}
			routed[visit] = r.ID
			routes[vehicle] = append(routes[vehicle], visit)
		}
	}

	return p, routes, nil
}

func (p *Plan) Facts() constraint.FactSet {
	facts := constraint.FactSet{
		Vehicles: make([]any, len(p.Vehicles)),
		Visits:   make([]any, len(p.Visits)),
	}
	for i, v := range p.Vehicles {
		facts[Vehicles][i] = v
	}
	for i, v := range p.Visits {
		facts[Visits][i] = v
	}
	return facts
}

// Routes 是车辆路线关系以及依附于它的影子属性
type Routes struct {
	*graph.ListVariable[*Vehicle, *Visit]
	Shadows *shadow.Engine
}

// NewRoutes 建立路线关系，并按 mode 级联计算到达时间
func NewRoutes(p *Plan, routes map[*Vehicle][]*Visit, mode shadow.Mode, observe func(int)) (*Routes, error) {
	list, err := graph.NewListVariable(graph.ListConfig[*Vehicle, *Visit]{
		Name:     VisitsRelation,
		Touches:  []string{Vehicles, Visits},
		Anchors:  p.Vehicles,
		Elements: p.Visits,
		Linker:   visitLinker{},
	})
	if err != nil {
		return nil, err
	}
	for _, vehicle := range p.Vehicles {
		if err := list.Load(vehicle, routes[vehicle]...); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrMalformedProblem, err)
		}
	}

	cascade := &shadow.Cascade[*Visit]{Mode: mode, Update: updateArrivalTime, Observe: observe}
	attrs := append(list.Attributes(),
		shadow.Attribute{
			Name:      routeAttribute,
			DependsOn: []string{VisitsRelation},
			Refresh: func(ch shadow.Change) {
				for _, seg := range ch.Segments {
					vehicle := seg.Anchor.(*Vehicle)
					vehicle.Visits = slices.Clone(list.List(vehicle))
				}
			},
		},
		shadow.Attribute{
			Name:      arrivalAttribute,
			DependsOn: []string{list.InverseAttribute(), list.NeighborsAttribute()},
			Refresh: func(ch shadow.Change) {
				for _, v := range ch.Detached {
					cascade.Clear(v.(*Visit))
				}
				for _, seg := range ch.Segments {
					cascade.Run(list.List(seg.Anchor.(*Vehicle)), seg.From, seg.Through)
				}
			},
		},
	)
	engine, err := shadow.New(attrs...)
	if err != nil {
		return nil, err
	}

	return &Routes{ListVariable: list, Shadows: engine}, nil
}

func NewDirector(p *Plan, routes map[*Vehicle][]*Visit, opts domain.Options) (*director.Director, error) {
	r, err := NewRoutes(p, routes, opts.PropagationMode, opts.ObservePropagation)
	if err != nil {
		return nil, err
	}

	return director.New(director.Solution{
		Kind:        score.HardSoft,
		Facts:       p.Facts(),
		Relations:   []graph.Relation{r.ListVariable},
		Shadows:     r.Shadows,
		Constraints: Constraints(),
	}, opts.DirectorOptions()...)
}

func Load(data []byte, opts domain.Options) (*director.Director, error) {
	p, routes, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewDirector(p, routes, opts)
}
