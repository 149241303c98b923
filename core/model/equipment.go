package model

import (
	"fmt"
	"time"
)

// Device is a piece of equipment that can be loaded on a vehicle and carry
// modules in numbered slots.
type Device struct {
	ID                    string         `json:"id" yaml:"id"`
	Name                  string         `json:"name" yaml:"name"`
	Type                  string         `json:"type" yaml:"type"`
	Environment           Environment    `json:"environment" yaml:"environment"`
	WeightKg              float64        `json:"weight_kg" yaml:"weight_kg"`
	VolumeM3              float64        `json:"volume_m3" yaml:"volume_m3"`
	ModuleSlots           int            `json:"module_slots" yaml:"module_slots"`
	CompatibleModuleTypes []ModuleType   `json:"compatible_module_types" yaml:"compatible_module_types"`
	MountedModuleCount    int            `json:"mounted_module_count" yaml:"-"`
	ApplicableDisasters   []DisasterType `json:"applicable_disasters" yaml:"applicable_disasters"`
	ForbiddenDisasters    []DisasterType `json:"forbidden_disasters" yaml:"forbidden_disasters"`
	VehicleID             string         `json:"vehicle_id,omitempty" yaml:"-"`
	UpdatedAt             time.Time      `json:"updated_at" yaml:"-"`
	Version               int64          `json:"version" yaml:"-"`
}

// AcceptsModule reports whether modules of type t fit the device.
func (d Device) AcceptsModule(t ModuleType) bool {
	for _, m := range d.CompatibleModuleTypes {
		if m == t {
			return true
		}
	}
	return false
}

// ApplicableTo reports whether the device may be used for the disaster type.
// An empty applicability list means any disaster that is not forbidden.
func (d Device) ApplicableTo(dt DisasterType) bool {
	return applicable(d.ApplicableDisasters, d.ForbiddenDisasters, dt)
}

// Validate checks the static device definition.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("device id is required")
	}
	if d.WeightKg < 0 || d.VolumeM3 < 0 || d.ModuleSlots < 0 {
		return fmt.Errorf("device %s: negative physical attribute", d.ID)
	}
	if d.MountedModuleCount > d.ModuleSlots {
		return fmt.Errorf("device %s: %d modules exceed %d slots", d.ID, d.MountedModuleCount, d.ModuleSlots)
	}
	return nil
}

// Module provides a single capability once mounted on a device slot.
type Module struct {
	ID                    string            `json:"id" yaml:"id"`
	Name                  string            `json:"name" yaml:"name"`
	Type                  ModuleType        `json:"type" yaml:"type"`
	WeightKg              float64           `json:"weight_kg" yaml:"weight_kg"`
	SlotsRequired         int               `json:"slots_required" yaml:"slots_required"`
	CompatibleDeviceTypes []string          `json:"compatible_device_types" yaml:"compatible_device_types"`
	Capability            Capability        `json:"capability" yaml:"capability"`
	CapabilityParams      map[string]string `json:"capability_params,omitempty" yaml:"capability_params"`
	ApplicableDisasters   []DisasterType    `json:"applicable_disasters" yaml:"applicable_disasters"`
	ForbiddenDisasters    []DisasterType    `json:"forbidden_disasters" yaml:"forbidden_disasters"`
	RequiredFor           []DisasterType    `json:"required_for" yaml:"required_for"`
	DeviceID              string            `json:"device_id,omitempty" yaml:"-"`
	SlotPosition          int               `json:"slot_position,omitempty" yaml:"-"`
	UpdatedAt             time.Time         `json:"updated_at" yaml:"-"`
	Version               int64             `json:"version" yaml:"-"`
}

// FitsDevice reports whether the module lists the device type as compatible.
func (m Module) FitsDevice(deviceType string) bool {
	return containsString(m.CompatibleDeviceTypes, deviceType)
}

// ApplicableTo reports whether the module may be used for the disaster type.
func (m Module) ApplicableTo(dt DisasterType) bool {
	return applicable(m.ApplicableDisasters, m.ForbiddenDisasters, dt)
}

// LoadRecord binds a device to the vehicle carrying it.
type LoadRecord struct {
	VehicleID string    `json:"vehicle_id"`
	DeviceID  string    `json:"device_id"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// MountRecord binds a module to one slot of a device.
type MountRecord struct {
	DeviceID  string    `json:"device_id"`
	Slot      int       `json:"slot"`
	ModuleID  string    `json:"module_id"`
	MountedAt time.Time `json:"mounted_at"`
}

func applicable(allowed, forbidden []DisasterType, dt DisasterType) bool {
	for _, f := range forbidden {
		if f == dt {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == dt {
			return true
		}
	}
	return false
}
