// Package rules holds the hard veto rules and the per-disaster evaluation
// weights read by the matching engine.
package rules

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// WeightTolerance bounds how far the five weights may drift from 1.
const WeightTolerance = 1e-6

// ErrInvalidWeights is returned for a weight vector that cannot be used.
var ErrInvalidWeights = errors.New("invalid evaluation weights")

// Metric names a derived per-candidate or per-plan value checked by rules.
type Metric string

const (
	MetricPersonnelRisk      Metric = "personnel_risk"
	MetricResponseTime       Metric = "response_time_minutes"
	MetricCapabilityCoverage Metric = "capability_coverage"
	MetricCapacityCoverage   Metric = "capacity_coverage"
)

// Valid reports whether the metric is one the engine computes.
func (m Metric) Valid() bool {
	switch m {
	case MetricPersonnelRisk, MetricResponseTime, MetricCapabilityCoverage, MetricCapacityCoverage:
		return true
	}
	return false
}

// Scope tells at which stage a rule is evaluated.
type Scope string

const (
	// ScopeCandidate rules apply to single candidates and to assembled plans.
	ScopeCandidate Scope = "candidate"
	// ScopePlan rules apply once a team and its vehicles are assembled.
	ScopePlan Scope = "plan"
)

// Operator is the comparison a metric value must satisfy against the rule
// threshold for the candidate to stay admissible.
type Operator string

const (
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpEQ Operator = "=="
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OpLT, OpLE, OpGT, OpGE, OpEQ:
		return true
	}
	return false
}

// Holds reports whether value satisfies the comparison against threshold.
func (o Operator) Holds(value, threshold float64) bool {
	switch o {
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	case OpEQ:
		return math.Abs(value-threshold) <= WeightTolerance
	}
	return false
}

// HardRule is a non-negotiable threshold. A candidate whose metric does not
// satisfy Operator against Threshold is rejected with Message.
type HardRule struct {
	ID        string   `json:"id" yaml:"id"`
	Field     Metric   `json:"field" yaml:"field"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Message   string   `json:"message" yaml:"message"`
	Active    bool     `json:"active" yaml:"active"`
	Scope     Scope    `json:"scope" yaml:"scope"`
}

// Validate checks the rule definition.
func (r HardRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Field.Valid() {
		return fmt.Errorf("rule %s: unknown metric %q", r.ID, r.Field)
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("rule %s: unknown operator %q", r.ID, r.Operator)
	}
	if r.Scope != ScopeCandidate && r.Scope != ScopePlan {
		return fmt.Errorf("rule %s: unknown scope %q", r.ID, r.Scope)
	}
	if r.Message == "" {
		return fmt.Errorf("rule %s: message is required", r.ID)
	}
	return nil
}

// WeightVector weights the five evaluation dimensions.
type WeightVector struct {
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`
	ResponseTime float64 `json:"response_time" yaml:"response_time"`
	CoverageRate float64 `json:"coverage_rate" yaml:"coverage_rate"`
	Risk         float64 `json:"risk" yaml:"risk"`
	Redundancy   float64 `json:"redundancy" yaml:"redundancy"`
}

// Slice returns the weights in dimension order.
func (w WeightVector) Slice() []float64 {
	return []float64{w.SuccessRate, w.ResponseTime, w.CoverageRate, w.Risk, w.Redundancy}
}

// Validate checks that every weight is non-negative and that they sum to 1.
func (w WeightVector) Validate() error {
	ws := w.Slice()
	if floats.HasNaN(ws) || floats.Min(ws) < 0 {
		return fmt.Errorf("%w: negative or NaN weight in %v", ErrInvalidWeights, ws)
	}
	if sum := floats.Sum(ws); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.9f", ErrInvalidWeights, sum)
	}
	return nil
}

// Combine returns the weighted sum of the five dimension values, given in
// the same order as Slice.
func (w WeightVector) Combine(dims [5]float64) float64 {
	return floats.Dot(w.Slice(), dims[:])
}

// RuleSet is the full content of the rule store.
type RuleSet struct {
	Rules   []HardRule                          `json:"rules" yaml:"rules"`
	Weights map[model.DisasterType]WeightVector `json:"weights" yaml:"weights"`
}

// Validate enforces the rule set invariants: valid, uniquely named rules and
// a mandatory default weight vector, every vector summing to 1.
func (rs RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = true
	}
	if _, ok := rs.Weights[model.DefaultDisaster]; !ok {
		return fmt.Errorf("%w: missing %q vector", ErrInvalidWeights, model.DefaultDisaster)
	}
	for dt, w := range rs.Weights {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("weights for %s: %w", dt, err)
		}
	}
	return nil
}

// Default returns the production rule set.
func Default() RuleSet {
	return RuleSet{
		Rules: []HardRule{
			{ID: "HR-EM-001", Field: MetricPersonnelRisk, Operator: OpLE, Threshold: 0.15, Active: true, Scope: ScopeCandidate,
				Message: "estimated personnel risk exceeds 15%"},
			{ID: "HR-EM-002", Field: MetricResponseTime, Operator: OpLE, Threshold: 180, Active: true, Scope: ScopeCandidate,
				Message: "estimated response time exceeds 180 minutes"},
			{ID: "HR-EM-003", Field: MetricCapabilityCoverage, Operator: OpGE, Threshold: 0.70, Active: true, Scope: ScopeCandidate,
				Message: "capability coverage below 70%"},
			{ID: "HR-EM-004", Field: MetricCapacityCoverage, Operator: OpGE, Threshold: 0.50, Active: true, Scope: ScopePlan,
				Message: "resources on hand cover less than 50% of required capacity, emergency reinforcement needed"},
		},
		Weights: map[model.DisasterType]WeightVector{
			model.DefaultDisaster: {SuccessRate: 0.30, ResponseTime: 0.25, CoverageRate: 0.25, Risk: 0.10, Redundancy: 0.10},
			"earthquake":          {SuccessRate: 0.30, ResponseTime: 0.30, CoverageRate: 0.20, Risk: 0.10, Redundancy: 0.10},
			"flood":               {SuccessRate: 0.25, ResponseTime: 0.35, CoverageRate: 0.20, Risk: 0.15, Redundancy: 0.05},
		},
	}
}
