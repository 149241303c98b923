// Package gate applies the hard veto rules to scored candidates and plans.
package gate

import (
	"context"
	"fmt"

	"github.com/kilianp07/rescuedispatch/core/rules"
)

// Metrics carries the named values a rule can be evaluated against. A rule
// whose metric is absent is skipped.
type Metrics map[rules.Metric]float64

// Violation records a failed rule.
type Violation struct {
	RuleID    string         `json:"rule_id"`
	Metric    rules.Metric   `json:"metric"`
	Value     float64        `json:"value"`
	Threshold float64        `json:"threshold"`
	Operator  rules.Operator `json:"operator"`
	Message   string         `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s=%.4g, want %s %.4g)", v.RuleID, v.Message, v.Metric, v.Value, v.Operator, v.Threshold)
}

// Verdict is the outcome of a gate evaluation.
type Verdict struct {
	Admissible bool        `json:"admissible"`
	Violations []Violation `json:"violations,omitempty"`
}

// Violated reports whether the rule with the given ID failed.
func (v Verdict) Violated(ruleID string) bool {
	for _, x := range v.Violations {
		if x.RuleID == ruleID {
			return true
		}
	}
	return false
}

// OnlyMetric reports whether every violation belongs to a rule on the given
// metric. It is false for an admissible verdict.
func (v Verdict) OnlyMetric(m rules.Metric) bool {
	if v.Admissible {
		return false
	}
	for _, x := range v.Violations {
		if x.Metric != m {
			return false
		}
	}
	return true
}

// Evaluator checks metrics against the active rules of a rule store.
type Evaluator struct {
	rules rules.Store
}

// New returns an evaluator reading rules from rs.
func New(rs rules.Store) *Evaluator {
	return &Evaluator{rules: rs}
}

// Candidate evaluates the candidate-scope rules.
func (e *Evaluator) Candidate(ctx context.Context, m Metrics) (Verdict, error) {
	return e.evaluate(ctx, m, false)
}

// Plan evaluates every rule, candidate-scope rules included, against an
// assembled plan.
func (e *Evaluator) Plan(ctx context.Context, m Metrics) (Verdict, error) {
	return e.evaluate(ctx, m, true)
}

func (e *Evaluator) evaluate(ctx context.Context, m Metrics, plan bool) (Verdict, error) {
	hr, err := e.rules.HardRules(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("load hard rules: %w", err)
	}
	verdict := Verdict{Admissible: true}
	for _, r := range hr {
		if !r.Active || (r.Scope == rules.ScopePlan && !plan) {
			continue
		}
		val, ok := m[r.Field]
		if !ok {
			continue
		}
		if r.Operator.Holds(val, r.Threshold) {
			continue
		}
		verdict.Admissible = false
		verdict.Violations = append(verdict.Violations, Violation{
			RuleID:    r.ID,
			Metric:    r.Field,
			Value:     val,
			Threshold: r.Threshold,
			Operator:  r.Operator,
			Message:   r.Message,
		})
	}
	return verdict, nil
}
