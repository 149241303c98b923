package model

import (
	"math"
	"testing"
)

func TestCapabilitySetIntersect(t *testing.T) {
	a := NewCapabilitySet("LIFE_DETECTION", "STRUCTURAL_RESCUE", "LIFE_DETECTION")
	b := NewCapabilitySet("LIFE_DETECTION", "WATER_RESCUE")
	if a.Len() != 2 {
		t.Fatalf("expected duplicates to collapse, got %d", a.Len())
	}
	got := a.Intersect(b)
	if got.Len() != 1 || !got.Has("LIFE_DETECTION") {
		t.Fatalf("unexpected intersection %v", got)
	}
}

func TestDistanceKm(t *testing.T) {
	paris := Location{Lat: 48.8566, Lon: 2.3522}
	lyon := Location{Lat: 45.7640, Lon: 4.8357}
	d := DistanceKm(paris, lyon)
	if math.Abs(d-392) > 5 {
		t.Fatalf("expected ~392km got %v", d)
	}
	if DistanceKm(paris, paris) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestTeamCapabilityLevel(t *testing.T) {
	team := Team{Capabilities: []TeamCapability{
		{Code: "LIFE_DETECTION", Level: 4},
		{Code: "STRUCTURAL_RESCUE", Level: 2},
		{Code: "WATER_RESCUE", Level: 5},
	}}
	lvl := team.CapabilityLevel(NewCapabilitySet("LIFE_DETECTION", "STRUCTURAL_RESCUE"), "")
	if lvl != 3 {
		t.Fatalf("expected 3 got %v", lvl)
	}
	if team.CapabilityLevel(NewCapabilitySet("FIRE"), "") != 0 {
		t.Fatalf("expected 0 for no match")
	}
}

func TestTeamCapabilitiesByDisasterType(t *testing.T) {
	team := Team{Capabilities: []TeamCapability{
		{Code: "LIFE_DETECTION", Level: 4},
		{Code: "STRUCTURAL_RESCUE", Level: 2, DisasterTypes: []DisasterType{"earthquake"}},
		{Code: "WATER_RESCUE", Level: 5, DisasterTypes: []DisasterType{"flood", "tsunami"}},
	}}
	required := NewCapabilitySet("LIFE_DETECTION", "STRUCTURAL_RESCUE", "WATER_RESCUE")

	checks := []struct {
		disaster DisasterType
		codes    int
		level    float64
	}{
		{"", 3, 11.0 / 3},
		{"earthquake", 2, 3},
		{"flood", 2, 4.5},
		{"wildfire", 1, 4},
	}
	for _, c := range checks {
		if got := team.CapabilitySet(c.disaster).Len(); got != c.codes {
			t.Errorf("%q: expected %d capabilities got %d", c.disaster, c.codes, got)
		}
		if got := team.CapabilityLevel(required, c.disaster); got != c.level {
			t.Errorf("%q: expected level %v got %v", c.disaster, c.level, got)
		}
	}
}

func TestVehicleCapacityHelpers(t *testing.T) {
	v := Vehicle{MaxWeightKg: 500, CurrentWeightKg: 400, MaxDeviceSlots: 4, CurrentDeviceCount: 1,
		TerrainCapabilities: []string{"mud", "road"}}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"spare weight", v.SpareWeightKg(), 100},
		{"spare fraction", v.SpareWeightFraction(), 0.2},
		{"slot headroom", v.SlotHeadroom(), 0.75},
		{"terrain partial", v.TerrainMatch([]string{"mud", "snow"}), 0.5},
		{"terrain none required", v.TerrainMatch(nil), 1},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
	v.IsAllTerrain = true
	if v.TerrainMatch([]string{"snow"}) != 1 {
		t.Errorf("all-terrain vehicle must match any terrain")
	}
}

func TestTaskValidateBinding(t *testing.T) {
	task := Task{ID: "t1", Status: TaskPending, AssignedTeamIDs: []string{"a"}}
	if err := task.Validate(); err == nil {
		t.Fatalf("expected error for pending task with bound team")
	}
	task.Status = TaskAssigned
	if err := task.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTeamValidateDeployment(t *testing.T) {
	team := Team{ID: "a", TotalPersonnel: 10, AvailablePersonnel: 10, Status: TeamDeployed}
	if err := team.Validate(); err == nil {
		t.Fatalf("deployed team without task must be invalid")
	}
	team.CurrentTaskID = "t1"
	if err := team.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeviceApplicability(t *testing.T) {
	d := Device{ForbiddenDisasters: []DisasterType{"flood"}}
	if d.ApplicableTo("flood") {
		t.Fatalf("forbidden disaster must not apply")
	}
	if !d.ApplicableTo("earthquake") {
		t.Fatalf("empty applicability list applies to any other disaster")
	}
	m := Module{ApplicableDisasters: []DisasterType{"earthquake"}}
	if m.ApplicableTo("fire") {
		t.Fatalf("module limited to earthquake must not apply to fire")
	}
}
