package model

import (
	"fmt"
	"time"
)

// VehicleStatus mirrors the load/deploy lifecycle of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleDeployed    VehicleStatus = "deployed"
	VehicleMaintenance VehicleStatus = "maintenance"
)

// Vehicle carries teams and devices to a task site.
//
// CurrentWeightKg, CurrentVolumeM3 and CurrentDeviceCount are live totals that
// must always equal the sum over the devices currently loaded on the vehicle.
// They are only written by the capacity ledger.
type Vehicle struct {
	ID                    string        `json:"id" yaml:"id"`
	Name                  string        `json:"name" yaml:"name"`
	Type                  string        `json:"type" yaml:"type"`
	Base                  Location      `json:"base" yaml:"base"`
	TerrainCapabilities   []string      `json:"terrain_capabilities" yaml:"terrain_capabilities"`
	IsAllTerrain          bool          `json:"is_all_terrain" yaml:"is_all_terrain"`
	CompatibleDeviceTypes []string      `json:"compatible_device_types" yaml:"compatible_device_types"`
	MaxWeightKg           float64       `json:"max_weight_kg" yaml:"max_weight_kg"`
	MaxVolumeM3           float64       `json:"max_volume_m3" yaml:"max_volume_m3"`
	MaxDeviceSlots        int           `json:"max_device_slots" yaml:"max_device_slots"`
	RangeKm               float64       `json:"range_km" yaml:"range_km"`
	CurrentWeightKg       float64       `json:"current_weight_kg" yaml:"-"`
	CurrentVolumeM3       float64       `json:"current_volume_m3" yaml:"-"`
	CurrentDeviceCount    int           `json:"current_device_count" yaml:"-"`
	Status                VehicleStatus `json:"status" yaml:"status"`
	UpdatedAt             time.Time     `json:"updated_at" yaml:"-"`
	Version               int64         `json:"version" yaml:"-"`
}

// Accepts reports whether devices of the given type can be loaded.
func (v Vehicle) Accepts(deviceType string) bool {
	return containsString(v.CompatibleDeviceTypes, deviceType)
}

// TerrainMatch returns the fraction of required terrain tags the vehicle
// supports. All-terrain vehicles and empty requirements score 1.
func (v Vehicle) TerrainMatch(required []string) float64 {
	if v.IsAllTerrain || len(required) == 0 {
		return 1
	}
	var n int
	for _, tag := range required {
		if containsString(v.TerrainCapabilities, tag) {
			n++
		}
	}
	return float64(n) / float64(len(required))
}

// SpareWeightKg returns the remaining payload.
func (v Vehicle) SpareWeightKg() float64 {
	spare := v.MaxWeightKg - v.CurrentWeightKg
	if spare < 0 {
		return 0
	}
	return spare
}

// SpareWeightFraction returns (max-current)/max in [0,1].
func (v Vehicle) SpareWeightFraction() float64 {
	if v.MaxWeightKg <= 0 {
		return 0
	}
	return v.SpareWeightKg() / v.MaxWeightKg
}

// SlotHeadroom returns the free device-slot fraction in [0,1].
func (v Vehicle) SlotHeadroom() float64 {
	if v.MaxDeviceSlots <= 0 {
		return 0
	}
	free := v.MaxDeviceSlots - v.CurrentDeviceCount
	if free < 0 {
		return 0
	}
	return float64(free) / float64(v.MaxDeviceSlots)
}

// Validate checks static limits and the live totals against them.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.MaxWeightKg < 0 || v.MaxVolumeM3 < 0 || v.MaxDeviceSlots < 0 {
		return fmt.Errorf("vehicle %s: negative capacity limit", v.ID)
	}
	if v.CurrentDeviceCount > v.MaxDeviceSlots {
		return fmt.Errorf("vehicle %s: %d devices exceed %d slots", v.ID, v.CurrentDeviceCount, v.MaxDeviceSlots)
	}
	return nil
}
