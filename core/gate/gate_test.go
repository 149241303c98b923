package gate

import (
	"context"
	"testing"

	"github.com/kilianp07/rescuedispatch/core/rules"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	rs, err := rules.NewMemoryStore(rules.Default())
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	return New(rs)
}

func TestCandidateVerdicts(t *testing.T) {
	e := newEvaluator(t)
	checks := []struct {
		name    string
		m       Metrics
		ok      bool
		ruleIDs []string
	}{
		{"all good", Metrics{rules.MetricPersonnelRisk: 0.05, rules.MetricResponseTime: 60, rules.MetricCapabilityCoverage: 1}, true, nil},
		{"risky", Metrics{rules.MetricPersonnelRisk: 0.2, rules.MetricResponseTime: 60, rules.MetricCapabilityCoverage: 1}, false, []string{"HR-EM-001"}},
		{"slow and thin", Metrics{rules.MetricPersonnelRisk: 0.1, rules.MetricResponseTime: 200, rules.MetricCapabilityCoverage: 0.5}, false, []string{"HR-EM-002", "HR-EM-003"}},
		{"boundary", Metrics{rules.MetricPersonnelRisk: 0.15, rules.MetricResponseTime: 180, rules.MetricCapabilityCoverage: 0.7}, true, nil},
		{"plan metric ignored", Metrics{rules.MetricCapacityCoverage: 0.1}, true, nil},
	}
	for _, c := range checks {
		v, err := e.Candidate(context.Background(), c.m)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if v.Admissible != c.ok {
			t.Errorf("%s: admissible=%v want %v (%v)", c.name, v.Admissible, c.ok, v.Violations)
		}
		if len(v.Violations) != len(c.ruleIDs) {
			t.Errorf("%s: got %d violations want %d", c.name, len(v.Violations), len(c.ruleIDs))
			continue
		}
		for _, id := range c.ruleIDs {
			if !v.Violated(id) {
				t.Errorf("%s: expected %s violated", c.name, id)
			}
		}
	}
}

func TestPlanIncludesCandidateRules(t *testing.T) {
	e := newEvaluator(t)
	v, err := e.Plan(context.Background(), Metrics{
		rules.MetricPersonnelRisk:      0.3,
		rules.MetricCapacityCoverage:   0.4,
		rules.MetricCapabilityCoverage: 1,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !v.Violated("HR-EM-001") || !v.Violated("HR-EM-004") {
		t.Fatalf("expected both violations got %v", v.Violations)
	}
	if v.OnlyMetric(rules.MetricCapacityCoverage) {
		t.Fatalf("OnlyMetric must be false with a risk violation")
	}
}

func TestPlanReinforcementOnly(t *testing.T) {
	e := newEvaluator(t)
	v, _ := e.Plan(context.Background(), Metrics{rules.MetricCapacityCoverage: 0.3})
	if v.Admissible || !v.OnlyMetric(rules.MetricCapacityCoverage) {
		t.Fatalf("expected capacity-only violation got %+v", v)
	}
	if v.Violations[0].Message != rules.Default().Rules[3].Message {
		t.Fatalf("message must be carried verbatim, got %q", v.Violations[0].Message)
	}
}

// Lowering risk or raising coverage never turns an admissible candidate
// inadmissible.
func TestMonotonicity(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()
	for risk := 0.0; risk <= 0.15; risk += 0.01 {
		for cov := 0.7; cov <= 1.0; cov += 0.05 {
			base := Metrics{rules.MetricPersonnelRisk: risk, rules.MetricResponseTime: 100, rules.MetricCapabilityCoverage: cov}
			v, _ := e.Candidate(ctx, base)
			if !v.Admissible {
				continue
			}
			better := Metrics{rules.MetricPersonnelRisk: risk / 2, rules.MetricResponseTime: 50, rules.MetricCapabilityCoverage: 1}
			v2, _ := e.Candidate(ctx, better)
			if !v2.Admissible {
				t.Fatalf("improved metrics rejected: %v", v2.Violations)
			}
		}
	}
}

func TestInactiveRuleSkipped(t *testing.T) {
	rs := rules.Default()
	rs.Rules[0].Active = false
	store, err := rules.NewMemoryStore(rs)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	v, _ := New(store).Candidate(context.Background(), Metrics{rules.MetricPersonnelRisk: 0.9})
	if !v.Admissible {
		t.Fatalf("inactive rule must not veto: %v", v.Violations)
	}
}
