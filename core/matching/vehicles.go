package matching

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/kilianp07/rescuedispatch/core/gate"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/rules"
)

// VehicleCandidate is a scored vehicle.
type VehicleCandidate struct {
	Vehicle      model.Vehicle `json:"vehicle"`
	TerrainMatch float64       `json:"terrain_match"`
	DistanceKm   float64       `json:"distance_km"`
	ETAMinutes   float64       `json:"eta_minutes"`
	SpareWeight  float64       `json:"spare_weight"`
	Dimensions   [5]float64    `json:"dimensions"`
	Score        float64       `json:"score"`
	Verdict      gate.Verdict  `json:"verdict"`
}

// Metrics returns the values the candidate-scope hard rules check.
func (c VehicleCandidate) Metrics() gate.Metrics {
	return gate.Metrics{rules.MetricResponseTime: c.ETAMinutes}
}

// ScoreVehicles ranks the available vehicles for the task. When team is not
// nil, distance runs from the vehicle base through the team base to the task.
func (s *Scorer) ScoreVehicles(ctx context.Context, task model.Task, team *model.Team, vehicles []model.Vehicle, limit int) ([]VehicleCandidate, error) {
	w, err := s.weightsFor(ctx, task.DisasterType)
	if err != nil {
		return nil, err
	}
	list := scoreBatches(vehicles, s.BatchSize, func(v model.Vehicle) (VehicleCandidate, bool) {
		return s.rawVehicle(task, team, v)
	})
	if len(list) == 0 {
		return nil, nil
	}
	dist := make([]float64, len(list))
	for i, c := range list {
		dist[i] = c.DistanceKm
	}
	nd := inverseNormalize(dist)
	for i := range list {
		list[i].Dimensions[DimResponseTime] = nd[i]
		list[i].Score = w.Combine(list[i].Dimensions)
	}
	slices.SortFunc(list, func(a, b VehicleCandidate) int {
		if c := compareScores(a.Score, b.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
		return cmp.Compare(a.Vehicle.ID, b.Vehicle.ID)
	})
	return truncate(list, limit), nil
}

func (s *Scorer) rawVehicle(task model.Task, team *model.Team, v model.Vehicle) (VehicleCandidate, bool) {
	if v.Status != model.VehicleAvailable {
		return VehicleCandidate{}, false
	}
	match := v.TerrainMatch(task.RequiredVehicleTags)
	if match == 0 {
		return VehicleCandidate{}, false
	}
	var distance float64
	if team != nil {
		distance = model.DistanceKm(v.Base, team.Base) + model.DistanceKm(team.Base, task.Location)
	} else {
		distance = model.DistanceKm(v.Base, task.Location)
	}
	c := VehicleCandidate{
		Vehicle:      v,
		TerrainMatch: match,
		DistanceKm:   distance,
		ETAMinutes:   s.TravelMinutes(distance),
		SpareWeight:  v.SpareWeightFraction(),
	}
	c.Dimensions[DimSuccessRate] = match
	c.Dimensions[DimCoverageRate] = c.SpareWeight
	c.Dimensions[DimRisk] = rangeSufficiency(v.RangeKm, distance)
	c.Dimensions[DimRedundancy] = v.SlotHeadroom()
	return c, true
}

// rangeSufficiency scores whether the vehicle can make the round trip. An
// unset range is treated as sufficient.
func rangeSufficiency(rangeKm, distance float64) float64 {
	if rangeKm <= 0 || distance <= 0 {
		return 1
	}
	return math.Min(1, rangeKm/(2*distance))
}
