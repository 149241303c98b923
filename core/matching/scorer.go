// Package matching ranks rescue teams and vehicles against a task.
//
// Scoring is a pure read over the snapshots it is given. Raw per-candidate
// metrics are computed in parallel batches; pool-relative normalisation and
// the weighted combination happen once every batch is done.
package matching

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/rules"
)

const (
	// DefaultSpeedKmh converts straight-line distance into travel minutes.
	DefaultSpeedKmh = 40.0
	// DefaultBatchSize is the number of candidates scored per goroutine.
	DefaultBatchSize = 64

	scoreEpsilon = 1e-9
)

// Dimension indexes the five evaluation dimensions.
const (
	DimSuccessRate = iota
	DimResponseTime
	DimCoverageRate
	DimRisk
	DimRedundancy
)

// Scorer ranks candidates using the weight vectors of a rule store.
type Scorer struct {
	SpeedKmh  float64
	BatchSize int
	weights   rules.Store
}

// NewScorer returns a scorer. A non-positive speed selects DefaultSpeedKmh.
func NewScorer(weights rules.Store, speedKmh float64) *Scorer {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return &Scorer{SpeedKmh: speedKmh, BatchSize: DefaultBatchSize, weights: weights}
}

// TravelMinutes converts a distance into minutes at the configured speed.
func (s *Scorer) TravelMinutes(km float64) float64 {
	return km / s.SpeedKmh * 60
}

func (s *Scorer) weightsFor(ctx context.Context, dt model.DisasterType) (rules.WeightVector, error) {
	w, err := s.weights.Weights(ctx, dt)
	if err != nil {
		return rules.WeightVector{}, fmt.Errorf("weights for %s: %w", dt, err)
	}
	if err := w.Validate(); err != nil {
		return rules.WeightVector{}, fmt.Errorf("weights for %s: %w", dt, err)
	}
	return w, nil
}

// scoreBatches applies fn to every item, batch by batch in parallel, and
// returns the kept results in input order.
func scoreBatches[T, C any](items []T, batch int, fn func(T) (C, bool)) []C {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	out := make([]C, len(items))
	keep := make([]bool, len(items))
	var wg sync.WaitGroup
	for start := 0; start < len(items); start += batch {
		end := min(start+batch, len(items))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				out[i], keep[i] = fn(items[i])
			}
		}(start, end)
	}
	wg.Wait()
	kept := make([]C, 0, len(items))
	for i, c := range out {
		if keep[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

// inverseNormalize maps each value to [0,1] where the pool minimum scores 1
// and the maximum 0. A flat pool scores 1 everywhere.
func inverseNormalize(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	span := hi - lo
	for i, v := range vals {
		if span <= scoreEpsilon {
			out[i] = 1
			continue
		}
		out[i] = (hi - v) / span
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// PersonnelRisk estimates the chance of harm to a deployed team. Site hazard
// is damped by proficiency and amplified by the headcount shortfall against
// the recommended crew.
func PersonnelRisk(task model.Task, level float64, available int) float64 {
	if level < 1 {
		level = 1
	}
	damp := 1 - 0.5*(level-1)/4
	shortfall := 0.0
	if rec := task.RecommendedPersonnel; rec > 0 && available < rec {
		shortfall = float64(rec-available) / float64(rec)
	}
	return clamp01(task.HazardLevel * damp * (1 + shortfall))
}

func compareScores(a, b float64) int {
	switch {
	case math.Abs(a-b) <= scoreEpsilon:
		return 0
	case a > b:
		return -1
	default:
		return 1
	}
}

func truncate[C any](list []C, limit int) []C {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
