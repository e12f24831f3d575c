package routing

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/primitive"
)

type Vehicle struct {
	ID            string
	Capacity      int
	HomeLocation  primitive.Location
	DepartureTime time.Time

	// 影子属性：按顺序排列的访问点，由路线关系维护
	Visits []*Visit
}

func (v *Vehicle) TotalDemand() int {
	total := 0
	for _, visit := range v.Visits {
		total += visit.Demand
	}
	return total
}

// TotalDrivingTimeSeconds 包含从最后一个访问点返回出发地的时间
func (v *Vehicle) TotalDrivingTimeSeconds() int64 {
	if len(v.Visits) == 0 {
		return 0
	}
	var total int64
	previous := v.HomeLocation
	for _, visit := range v.Visits {
		total += previous.DrivingTimeTo(visit.Location)
		previous = visit.Location
	}
	return total + previous.DrivingTimeTo(v.HomeLocation)
}

// ArrivalTime 是车辆回到出发地的时间，路线中有缺失的到达时间时返回 nil
func (v *Vehicle) ArrivalTime() *time.Time {
	if len(v.Visits) == 0 {
		t := v.DepartureTime
		return &t
	}
	last := v.Visits[len(v.Visits)-1]
	departure := last.DepartureTime()
	if departure == nil {
		return nil
	}
	t := departure.Add(time.Duration(last.Location.DrivingTimeTo(v.HomeLocation)) * time.Second)
	return &t
}

type Visit struct {
	ID              string
	Name            string
	Location        primitive.Location
	Demand          int
	MinStartTime    time.Time
	MaxEndTime      time.Time
	ServiceDuration time.Duration

	// 以下均为影子属性
	Vehicle     *Vehicle
	Previous    *Visit
	Next        *Visit
	ArrivalTime *time.Time
}

func (v *Visit) IsAssigned() bool {
	return v.Vehicle != nil
}

func (v *Visit) StartServiceTime() *time.Time {
	if v.ArrivalTime == nil {
		return nil
	}
	t := *v.ArrivalTime
	if v.MinStartTime.After(t) {
		t = v.MinStartTime
	}
	return &t
}

func (v *Visit) DepartureTime() *time.Time {
	start := v.StartServiceTime()
	if start == nil {
		return nil
	}
	t := start.Add(v.ServiceDuration)
	return &t
}

func (v *Visit) IsServiceFinishedAfterMaxEndTime() bool {
	departure := v.DepartureTime()
	return departure != nil && departure.After(v.MaxEndTime)
}

// ServiceFinishedDelayInMinutes 向上取整，不足一分钟按一分钟计
func (v *Visit) ServiceFinishedDelayInMinutes() int64 {
	departure := v.DepartureTime()
	if departure == nil {
		return 0
	}
	return primitive.CeilMinutes(departure.Sub(v.MaxEndTime))
}

// DrivingTimeSecondsFromPreviousStandstill 在未分配时返回 nil
func (v *Visit) DrivingTimeSecondsFromPreviousStandstill() *int64 {
	if v.Vehicle == nil {
		return nil
	}
	var seconds int64
	if v.Previous == nil {
		seconds = v.Vehicle.HomeLocation.DrivingTimeTo(v.Location)
	} else {
		seconds = v.Previous.Location.DrivingTimeTo(v.Location)
	}
	return &seconds
}

func (v *Visit) computeArrivalTime() *time.Time {
	switch {
	case v.Vehicle == nil:
		return nil
	case v.Previous == nil:
		t := v.Vehicle.DepartureTime.Add(time.Duration(v.Vehicle.HomeLocation.DrivingTimeTo(v.Location)) * time.Second)
		return &t
	}

	departure := v.Previous.DepartureTime()
	if departure == nil {
		return nil
	}
	t := departure.Add(time.Duration(v.Previous.Location.DrivingTimeTo(v.Location)) * time.Second)
	return &t
}

// updateArrivalTime 重新计算到达时间，返回值是否发生变化
func updateArrivalTime(v *Visit) bool {
	next := v.computeArrivalTime()
	changed := (next == nil) != (v.ArrivalTime == nil) || (next != nil && !next.Equal(*v.ArrivalTime))
	v.ArrivalTime = next
	return changed
}

type visitLinker struct{}

func (visitLinker) SetAnchor(v *Visit, vehicle *Vehicle)        { v.Vehicle = vehicle }
func (visitLinker) SetNeighbors(v *Visit, previous, next *Visit) { v.Previous, v.Next = previous, next }
func (visitLinker) Anchor(v *Visit) *Vehicle                     { return v.Vehicle }
func (visitLinker) Neighbors(v *Visit) (previous, next *Visit)   { return v.Previous, v.Next }

func (v *Vehicle) PlanningID() string { return v.ID }
func (v *Visit) PlanningID() string   { return v.ID }

// Plan 是一个完整的车辆路径问题
type Plan struct {
	Name            string
	SouthWestCorner primitive.Location
	NorthEastCorner primitive.Location
	Vehicles        []*Vehicle
	Visits          []*Visit
}

func (p *Plan) TotalDrivingTimeSeconds() int64 {
	var total int64
	for _, v := range p.Vehicles {
		total += v.TotalDrivingTimeSeconds()
	}
	return total
}
