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

// TeamCandidate is a scored team. Verdict is filled by callers that run the
// hard gate.
type TeamCandidate struct {
	Team            model.Team   `json:"team"`
	Coverage        float64      `json:"coverage"`
	DistanceKm      float64      `json:"distance_km"`
	ETAMinutes      float64      `json:"eta_minutes"`
	CapabilityLevel float64      `json:"capability_level"`
	PersonnelRisk   float64      `json:"personnel_risk"`
	Dimensions      [5]float64   `json:"dimensions"`
	Score           float64      `json:"score"`
	Verdict         gate.Verdict `json:"verdict"`
}

// Metrics returns the values the candidate-scope hard rules check.
func (c TeamCandidate) Metrics() gate.Metrics {
	return gate.Metrics{
		rules.MetricPersonnelRisk:      c.PersonnelRisk,
		rules.MetricResponseTime:       c.ETAMinutes,
		rules.MetricCapabilityCoverage: c.Coverage,
	}
}

// ScoreTeams ranks the eligible teams for the task, best first, returning at
// most limit entries (all when limit <= 0). Teams that are not on standby,
// are short of the minimum personnel or share no required capability are
// excluded.
func (s *Scorer) ScoreTeams(ctx context.Context, task model.Task, teams []model.Team, limit int) ([]TeamCandidate, error) {
	w, err := s.weightsFor(ctx, task.DisasterType)
	if err != nil {
		return nil, err
	}
	required := task.Capabilities()
	list := scoreBatches(teams, s.BatchSize, func(t model.Team) (TeamCandidate, bool) {
		return s.rawTeam(task, required, t)
	})
	if len(list) == 0 {
		return nil, nil
	}

	dist := make([]float64, len(list))
	eta := make([]float64, len(list))
	for i, c := range list {
		dist[i], eta[i] = c.DistanceKm, c.ETAMinutes
	}
	nd, ne := inverseNormalize(dist), inverseNormalize(eta)
	for i := range list {
		list[i].Dimensions[DimResponseTime] = (nd[i] + ne[i]) / 2
		list[i].Score = w.Combine(list[i].Dimensions)
	}

	slices.SortFunc(list, func(a, b TeamCandidate) int {
		if c := compareScores(a.Score, b.Score); c != 0 {
			return c
		}
		if c := compareScores(a.CapabilityLevel, b.CapabilityLevel); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
		return cmp.Compare(a.Team.ID, b.Team.ID)
	})
	return truncate(list, limit), nil
}

func (s *Scorer) rawTeam(task model.Task, required model.CapabilitySet, t model.Team) (TeamCandidate, bool) {
	if t.Status != model.TeamStandby || t.AvailablePersonnel < task.MinPersonnel {
		return TeamCandidate{}, false
	}
	coverage := 1.0
	if required.Len() > 0 {
		coverage = float64(t.CapabilitySet(task.DisasterType).Intersect(required).Len()) / float64(required.Len())
	}
	if coverage == 0 {
		return TeamCandidate{}, false
	}
	level := t.CapabilityLevel(required, task.DisasterType)
	if required.Len() == 0 {
		level = t.CapabilityLevel(t.CapabilitySet(task.DisasterType), task.DisasterType)
	}
	distance := model.DistanceKm(t.Base, task.Location)
	risk := PersonnelRisk(task, level, t.AvailablePersonnel)

	c := TeamCandidate{
		Team:            t,
		Coverage:        coverage,
		DistanceKm:      distance,
		ETAMinutes:      t.ResponseTimeMinutes + s.TravelMinutes(distance),
		CapabilityLevel: level,
		PersonnelRisk:   risk,
	}
	c.Dimensions[DimSuccessRate] = clamp01(level / 5)
	c.Dimensions[DimCoverageRate] = coverage
	c.Dimensions[DimRisk] = 1 - risk
	c.Dimensions[DimRedundancy] = redundancy(task, t.AvailablePersonnel)
	return c, true
}

func redundancy(task model.Task, available int) float64 {
	want := task.RecommendedPersonnel
	if want <= 0 {
		want = task.MinPersonnel
	}
	if want <= 0 {
		return 1
	}
	return math.Min(1, float64(available)/float64(want))
}
