package rules

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// Store serves hard rules and evaluation weights. Implementations must be
// safe for concurrent use.
type Store interface {
	// HardRules returns the active rules.
	HardRules(ctx context.Context) ([]HardRule, error)
	// Weights returns the vector for the disaster type, falling back to the
	// default vector.
	Weights(ctx context.Context, dt model.DisasterType) (WeightVector, error)
}

// MemoryStore keeps a validated RuleSet in memory. Replace swaps the whole
// set atomically so readers never see a half-updated configuration.
type MemoryStore struct {
	mu  sync.RWMutex
	set RuleSet
}

// NewMemoryStore validates rs and returns a store serving it.
func NewMemoryStore(rs RuleSet) (*MemoryStore, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{set: cloneSet(rs)}, nil
}

// Replace validates rs and makes it the current rule set. An invalid set
// leaves the previous one in place.
func (s *MemoryStore) Replace(rs RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.set = cloneSet(rs)
	s.mu.Unlock()
	return nil
}

// HardRules implements Store.
func (s *MemoryStore) HardRules(_ context.Context) ([]HardRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HardRule, 0, len(s.set.Rules))
	for _, r := range s.set.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// Weights implements Store.
func (s *MemoryStore) Weights(_ context.Context, dt model.DisasterType) (WeightVector, error) {
	s.mu.RLock()
	w, ok := s.set.Weights[dt]
	if !ok {
		w, ok = s.set.Weights[model.DefaultDisaster]
	}
	s.mu.RUnlock()
	if !ok {
		return WeightVector{}, fmt.Errorf("%w: no vector for %s", ErrInvalidWeights, dt)
	}
	if err := w.Validate(); err != nil {
		return WeightVector{}, err
	}
	return w, nil
}

// Snapshot returns a copy of the full rule set, inactive rules included.
func (s *MemoryStore) Snapshot() RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSet(s.set)
}

func cloneSet(rs RuleSet) RuleSet {
	out := RuleSet{Rules: slices.Clone(rs.Rules), Weights: make(map[model.DisasterType]WeightVector, len(rs.Weights))}
	for k, v := range rs.Weights {
		out.Weights[k] = v
	}
	return out
}

type fileRule struct {
	ID        string  `yaml:"id"`
	Field     string  `yaml:"field"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
	Message   string  `yaml:"message"`
	Active    *bool   `yaml:"active"`
	Scope     string  `yaml:"scope"`
}

type fileSet struct {
	Rules   []fileRule                          `yaml:"rules"`
	Weights map[model.DisasterType]WeightVector `yaml:"weights"`
}

// Parse decodes a YAML rule file. Rules default to active; the scope of a
// capacity_coverage rule defaults to plan, every other metric to candidate.
func Parse(b []byte) (RuleSet, error) {
	var f fileSet
	if err := yaml.Unmarshal(b, &f); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules file: %w", err)
	}
	rs := RuleSet{Weights: f.Weights}
	for _, r := range f.Rules {
		hr := HardRule{
			ID:        strings.TrimSpace(r.ID),
			Field:     Metric(strings.TrimSpace(r.Field)),
			Operator:  Operator(strings.TrimSpace(r.Operator)),
			Threshold: r.Threshold,
			Message:   r.Message,
			Active:    r.Active == nil || *r.Active,
			Scope:     Scope(strings.TrimSpace(r.Scope)),
		}
		if hr.Scope == "" {
			hr.Scope = ScopeCandidate
			if hr.Field == MetricCapacityCoverage {
				hr.Scope = ScopePlan
			}
		}
		rs.Rules = append(rs.Rules, hr)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// LoadFile reads and validates a YAML rule file.
func LoadFile(path string) (RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(b)
}

// Load returns the rule set at path, or Default when path is empty.
func Load(path string) (RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
