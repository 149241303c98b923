package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSetIsValid(t *testing.T) {
	rs := Default()
	require.NoError(t, rs.Validate())
	ids := map[string]Scope{}
	for _, r := range rs.Rules {
		ids[r.ID] = r.Scope
	}
	assert.Equal(t, ScopeCandidate, ids["HR-EM-001"])
	assert.Equal(t, ScopePlan, ids["HR-EM-004"])
}

func TestWeightVectorValidate(t *testing.T) {
	checks := []struct {
		name string
		w    WeightVector
		ok   bool
	}{
		{"exact", WeightVector{0.2, 0.2, 0.2, 0.2, 0.2}, true},
		{"within tolerance", WeightVector{0.3, 0.25, 0.25, 0.1, 0.1 + 5e-7}, true},
		{"sum too high", WeightVector{0.3, 0.3, 0.3, 0.1, 0.1}, false},
		{"sum too low", WeightVector{0.1, 0.1, 0.1, 0.1, 0.1}, false},
		{"negative", WeightVector{1.2, -0.2, 0, 0, 0}, false},
	}
	for _, c := range checks {
		err := c.w.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidWeights) {
			t.Errorf("%s: expected ErrInvalidWeights got %v", c.name, err)
		}
	}
}

func TestOperatorHolds(t *testing.T) {
	assert.True(t, OpLE.Holds(0.15, 0.15))
	assert.False(t, OpLT.Holds(0.15, 0.15))
	assert.True(t, OpGE.Holds(0.7, 0.7))
	assert.False(t, OpGT.Holds(0.7, 0.7))
	assert.True(t, OpEQ.Holds(1, 1+1e-9))
	assert.False(t, Operator("~").Holds(1, 1))
}

func TestRuleSetRequiresDefaultWeights(t *testing.T) {
	rs := Default()
	delete(rs.Weights, "default")
	assert.ErrorIs(t, rs.Validate(), ErrInvalidWeights)
}

func TestRuleSetRejectsDuplicateIDs(t *testing.T) {
	rs := Default()
	rs.Rules = append(rs.Rules, rs.Rules[0])
	assert.Error(t, rs.Validate())
}

func TestMemoryStoreWeightsFallback(t *testing.T) {
	s, err := NewMemoryStore(Default())
	require.NoError(t, err)
	w, err := s.Weights(context.Background(), "volcano")
	require.NoError(t, err)
	assert.Equal(t, Default().Weights["default"], w)
	w, err = s.Weights(context.Background(), "flood")
	require.NoError(t, err)
	assert.Equal(t, Default().Weights["flood"], w)
}

func TestMemoryStoreReplaceKeepsPreviousOnError(t *testing.T) {
	s, err := NewMemoryStore(Default())
	require.NoError(t, err)
	bad := Default()
	bad.Weights["default"] = WeightVector{1, 1, 0, 0, 0}
	require.Error(t, s.Replace(bad))
	w, err := s.Weights(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, Default().Weights["default"], w)
}

func TestMemoryStoreHardRulesActiveOnly(t *testing.T) {
	rs := Default()
	rs.Rules[1].Active = false
	s, err := NewMemoryStore(rs)
	require.NoError(t, err)
	got, err := s.HardRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, r := range got {
		assert.NotEqual(t, "HR-EM-002", r.ID)
	}
	assert.Len(t, s.Snapshot().Rules, 4)
}

const ruleFile = `
rules:
  - id: HR-EM-001
    field: personnel_risk
    operator: "<="
    threshold: 0.15
    message: risk too high
  - id: HR-EM-004
    field: capacity_coverage
    operator: ">="
    threshold: 0.5
    message: reinforcement needed
  - id: HR-X
    field: response_time_minutes
    operator: "<="
    threshold: 60
    message: slow
    active: false
weights:
  default: {success_rate: 0.3, response_time: 0.25, coverage_rate: 0.25, risk: 0.1, redundancy: 0.1}
  earthquake: {success_rate: 0.2, response_time: 0.4, coverage_rate: 0.2, risk: 0.1, redundancy: 0.1}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ruleFile), 0o600))
	rs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)
	assert.True(t, rs.Rules[0].Active)
	assert.Equal(t, ScopeCandidate, rs.Rules[0].Scope)
	assert.Equal(t, ScopePlan, rs.Rules[1].Scope)
	assert.False(t, rs.Rules[2].Active)
	assert.InDelta(t, 0.4, rs.Weights["earthquake"].ResponseTime, 1e-9)
}

func TestParseRejectsBadOperator(t *testing.T) {
	_, err := Parse([]byte(`
rules:
  - {id: R, field: personnel_risk, operator: "=>", threshold: 1, message: m}
weights:
  default: {success_rate: 1}
`))
	assert.Error(t, err)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	rs, err := Load("")
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 4)
}
