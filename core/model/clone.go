package model

import "slices"

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	t.RequiredCapabilities = slices.Clone(t.RequiredCapabilities)
	t.RequiredVehicleTags = slices.Clone(t.RequiredVehicleTags)
	t.AssignedTeamIDs = slices.Clone(t.AssignedTeamIDs)
	t.AssignedVehicleIDs = slices.Clone(t.AssignedVehicleIDs)
	return t
}

// Clone returns a copy that shares no slices with t.
func (t Team) Clone() Team {
	caps := make([]TeamCapability, len(t.Capabilities))
	for i, c := range t.Capabilities {
		c.DisasterTypes = slices.Clone(c.DisasterTypes)
		caps[i] = c
	}
	t.Capabilities = caps
	return t
}

// Clone returns a copy that shares no slices with v.
func (v Vehicle) Clone() Vehicle {
	v.TerrainCapabilities = slices.Clone(v.TerrainCapabilities)
	v.CompatibleDeviceTypes = slices.Clone(v.CompatibleDeviceTypes)
	return v
}

// Clone returns a copy that shares no slices with d.
func (d Device) Clone() Device {
	d.CompatibleModuleTypes = slices.Clone(d.CompatibleModuleTypes)
	d.ApplicableDisasters = slices.Clone(d.ApplicableDisasters)
	d.ForbiddenDisasters = slices.Clone(d.ForbiddenDisasters)
	return d
}

// Clone returns a copy that shares no slices or maps with m.
func (m Module) Clone() Module {
	m.CompatibleDeviceTypes = slices.Clone(m.CompatibleDeviceTypes)
	m.ApplicableDisasters = slices.Clone(m.ApplicableDisasters)
	m.ForbiddenDisasters = slices.Clone(m.ForbiddenDisasters)
	m.RequiredFor = slices.Clone(m.RequiredFor)
	if m.CapabilityParams != nil {
		params := make(map[string]string, len(m.CapabilityParams))
		for k, v := range m.CapabilityParams {
			params[k] = v
		}
		m.CapabilityParams = params
	}
	return m
}

// Clone returns a copy that shares no slices or maps with r.
func (r DispatchRecord) Clone() DispatchRecord {
	r.VehicleIDs = slices.Clone(r.VehicleIDs)
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		r.CompletedAt = &ts
	}
	if r.CancelledAt != nil {
		ts := *r.CancelledAt
		r.CancelledAt = &ts
	}
	if r.Result != nil {
		res := make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			res[k] = v
		}
		r.Result = res
	}
	return r
}
