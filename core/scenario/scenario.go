// Package scenario seeds a resource-state store from a YAML file describing
// teams, vehicles, equipment, their initial loads and mounts, and tasks.
//
// Live capacity totals are never read from the file: every load and mount
// goes through the capacity ledger, which derives them.
package scenario

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/rescuedispatch/core/ledger"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

// Load pairs a device with the vehicle carrying it.
type Load struct {
	Vehicle string `yaml:"vehicle"`
	Device  string `yaml:"device"`
}

// Mount places a module in a device slot.
type Mount struct {
	Device string `yaml:"device"`
	Module string `yaml:"module"`
	Slot   int    `yaml:"slot"`
}

// Scenario is the content of a scenario file.
type Scenario struct {
	Name     string          `yaml:"name"`
	Teams    []model.Team    `yaml:"teams"`
	Vehicles []model.Vehicle `yaml:"vehicles"`
	Devices  []model.Device  `yaml:"devices"`
	Modules  []model.Module  `yaml:"modules"`
	Loads    []Load          `yaml:"loads"`
	Mounts   []Mount         `yaml:"mounts"`
	Tasks    []model.Task    `yaml:"tasks"`
}

// Parse decodes and validates a scenario document.
func Parse(b []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// LoadFile reads and parses the scenario at path.
func LoadFile(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(b)
}

// Validate checks entity invariants, ID uniqueness and the references of
// loads and mounts.
func (sc *Scenario) Validate() error {
	ids := map[string]map[string]bool{}
	seen := func(kind, id string) error {
		if ids[kind] == nil {
			ids[kind] = map[string]bool{}
		}
		if ids[kind][id] {
			return fmt.Errorf("scenario: duplicate %s %q", kind, id)
		}
		ids[kind][id] = true
		return nil
	}
	for i := range sc.Teams {
		t := &sc.Teams[i]
		if t.Status == "" {
			t.Status = model.TeamStandby
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if err := seen("team", t.ID); err != nil {
			return err
		}
	}
	for i := range sc.Vehicles {
		v := &sc.Vehicles[i]
		if v.Status == "" {
			v.Status = model.VehicleAvailable
		}
		if err := v.Validate(); err != nil {
			return err
		}
		if err := seen("vehicle", v.ID); err != nil {
			return err
		}
	}
	for _, d := range sc.Devices {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := seen("device", d.ID); err != nil {
			return err
		}
	}
	for _, m := range sc.Modules {
		if m.ID == "" {
			return fmt.Errorf("scenario: module id is required")
		}
		if err := seen("module", m.ID); err != nil {
			return err
		}
	}
	for i := range sc.Tasks {
		t := &sc.Tasks[i]
		if t.Status == "" {
			t.Status = model.TaskPending
		}
		if t.Status != model.TaskPending {
			return fmt.Errorf("scenario: task %s must start pending, got %s", t.ID, t.Status)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if err := seen("task", t.ID); err != nil {
			return err
		}
	}
	for _, l := range sc.Loads {
		if !ids["vehicle"][l.Vehicle] || !ids["device"][l.Device] {
			return fmt.Errorf("scenario: load %s on %s references an unknown entity", l.Device, l.Vehicle)
		}
	}
	for _, m := range sc.Mounts {
		if !ids["device"][m.Device] || !ids["module"][m.Module] {
			return fmt.Errorf("scenario: mount %s on %s references an unknown entity", m.Module, m.Device)
		}
	}
	return nil
}

// Stats counts what Seed wrote.
type Stats struct {
	Teams, Vehicles, Devices, Modules, Loads, Mounts, Tasks int
}

// Seed writes the entities in one transaction, then applies loads and
// mounts through the ledger. A load or mount the ledger refuses aborts
// seeding with its reason.
func Seed(ctx context.Context, s store.Store, l *ledger.Ledger, sc Scenario) (Stats, error) {
	var st Stats
	err := s.Update(ctx, func(tx store.Tx) error {
		for _, t := range sc.Teams {
			t.CurrentTaskID = ""
			if _, err := tx.SaveTeam(ctx, t); err != nil {
				return err
			}
			st.Teams++
		}
		for _, v := range sc.Vehicles {
			v.CurrentWeightKg, v.CurrentVolumeM3, v.CurrentDeviceCount = 0, 0, 0
			if _, err := tx.SaveVehicle(ctx, v); err != nil {
				return err
			}
			st.Vehicles++
		}
		for _, d := range sc.Devices {
			d.VehicleID = ""
			if _, err := tx.SaveDevice(ctx, d); err != nil {
				return err
			}
			st.Devices++
		}
		for _, m := range sc.Modules {
			if _, err := tx.SaveModule(ctx, m); err != nil {
				return err
			}
			st.Modules++
		}
		for _, t := range sc.Tasks {
			t.AssignedTeamIDs, t.AssignedVehicleIDs = nil, nil
			if _, err := tx.SaveTask(ctx, t); err != nil {
				return err
			}
			st.Tasks++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("seed entities: %w", err)
	}
	for _, ld := range sc.Loads {
		f, err := l.Load(ctx, ld.Vehicle, ld.Device)
		if err != nil {
			return st, fmt.Errorf("load %s on %s: %w", ld.Device, ld.Vehicle, err)
		}
		if !f.OK {
			return st, fmt.Errorf("load %s on %s refused: %s", ld.Device, ld.Vehicle, f.Message)
		}
		st.Loads++
	}
	for _, m := range sc.Mounts {
		f, err := l.Mount(ctx, m.Device, m.Module, m.Slot)
		if err != nil {
			return st, fmt.Errorf("mount %s on %s: %w", m.Module, m.Device, err)
		}
		if !f.OK {
			return st, fmt.Errorf("mount %s on %s slot %d refused: %s", m.Module, m.Device, m.Slot, f.Message)
		}
		st.Mounts++
	}
	return st, nil
}
