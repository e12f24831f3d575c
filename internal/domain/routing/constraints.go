package routing

import (
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

const (
	Vehicles = "vehicles"
	Visits   = "visits"
)

func vehicleAt(t constraint.Tuple) *Vehicle {
	return constraint.Arg[*Vehicle](t, 0)
}

func visitAt(t constraint.Tuple) *Visit {
	return constraint.Arg[*Visit](t, 0)
}

func Constraints() []*constraint.Constraint {
	return []*constraint.Constraint{
		vehicleCapacity(),
		serviceFinishedAfterMaxEndTime(),
		minimizeTravelTime(),
	}
}

func vehicleCapacity() *constraint.Constraint {
	return constraint.ForEach(Vehicles).
		Filter(func(t constraint.Tuple) bool {
			v := vehicleAt(t)
			return v.TotalDemand() > v.Capacity
		}).
		PenalizeBy("Vehicle capacity", score.HardSoft.One("hard"), func(t constraint.Tuple) int64 {
			v := vehicleAt(t)
			return int64(v.TotalDemand() - v.Capacity)
		})
}

func serviceFinishedAfterMaxEndTime() *constraint.Constraint {
	return constraint.ForEach(Visits).
		Filter(func(t constraint.Tuple) bool { return visitAt(t).IsServiceFinishedAfterMaxEndTime() }).
		PenalizeBy("Service finished after max end time", score.HardSoft.One("hard"), func(t constraint.Tuple) int64 {
			return visitAt(t).ServiceFinishedDelayInMinutes()
		})
}

func minimizeTravelTime() *constraint.Constraint {
	return constraint.ForEach(Vehicles).
		PenalizeBy("Minimize travel time", score.HardSoft.One("soft"), func(t constraint.Tuple) int64 {
			return vehicleAt(t).TotalDrivingTimeSeconds()
		})
}
