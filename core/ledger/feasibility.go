package ledger

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// Reason classifies an infeasible load or mount.
type Reason string

const (
	ReasonIncompatible   Reason = "incompatible_type"
	ReasonWeight         Reason = "weight_exceeded"
	ReasonVolume         Reason = "volume_exceeded"
	ReasonSlots          Reason = "slots_exhausted"
	ReasonAlreadyLoaded  Reason = "already_loaded"
	ReasonSlotRange      Reason = "slot_out_of_range"
	ReasonSlotOccupied   Reason = "slot_occupied"
	ReasonAlreadyMounted Reason = "already_mounted"
	ReasonHalted         Reason = "halted"
)

// tolerance absorbs float drift when comparing capacity sums.
const tolerance = 1e-6

// Feasibility is the result of a load or mount check. Overage carries the
// amount over the violated limit in the limit's unit.
type Feasibility struct {
	OK      bool    `json:"ok"`
	Reason  Reason  `json:"reason,omitempty"`
	Message string  `json:"message,omitempty"`
	Overage float64 `json:"overage,omitempty"`
}

var feasible = Feasibility{OK: true}

func infeasible(r Reason, overage float64, format string, args ...any) Feasibility {
	return Feasibility{Reason: r, Message: fmt.Sprintf(format, args...), Overage: overage}
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// CheckLoad reports whether device d can be loaded on vehicle v given the
// vehicle's current totals.
func CheckLoad(v model.Vehicle, d model.Device) Feasibility {
	if d.VehicleID != "" {
		return infeasible(ReasonAlreadyLoaded, 0, "device %s already loaded on vehicle %s", d.ID, d.VehicleID)
	}
	if !v.Accepts(d.Type) {
		return infeasible(ReasonIncompatible, 0, "device type %s not accepted by vehicle %s", d.Type, v.ID)
	}
	if total := v.CurrentWeightKg + d.WeightKg; total > v.MaxWeightKg+tolerance {
		return infeasible(ReasonWeight, total-v.MaxWeightKg,
			"exceeds max weight: current %skg + %skg > %skg", num(v.CurrentWeightKg), num(d.WeightKg), num(v.MaxWeightKg))
	}
	if total := v.CurrentVolumeM3 + d.VolumeM3; total > v.MaxVolumeM3+tolerance {
		return infeasible(ReasonVolume, total-v.MaxVolumeM3,
			"exceeds max volume: current %sm3 + %sm3 > %sm3", num(v.CurrentVolumeM3), num(d.VolumeM3), num(v.MaxVolumeM3))
	}
	if v.CurrentDeviceCount >= v.MaxDeviceSlots {
		return infeasible(ReasonSlots, float64(v.CurrentDeviceCount+1-v.MaxDeviceSlots),
			"no free device slot: %d of %d in use", v.CurrentDeviceCount, v.MaxDeviceSlots)
	}
	return feasible
}

// CheckMount reports whether module m can be mounted on slot of device d.
// occupied lists the slots already in use on d.
func CheckMount(d model.Device, m model.Module, slot int, occupied []model.MountRecord) Feasibility {
	if m.DeviceID != "" {
		return infeasible(ReasonAlreadyMounted, 0, "module %s already mounted on device %s slot %d", m.ID, m.DeviceID, m.SlotPosition)
	}
	if !d.AcceptsModule(m.Type) {
		return infeasible(ReasonIncompatible, 0, "module type %s not accepted by device %s", m.Type, d.ID)
	}
	if !m.FitsDevice(d.Type) {
		return infeasible(ReasonIncompatible, 0, "module %s not compatible with device type %s", m.ID, d.Type)
	}
	if slot < 1 || slot > d.ModuleSlots {
		return infeasible(ReasonSlotRange, 0, "slot %d outside 1..%d", slot, d.ModuleSlots)
	}
	for _, rec := range occupied {
		if rec.Slot == slot {
			return infeasible(ReasonSlotOccupied, 0, "slot %d occupied by module %s", slot, rec.ModuleID)
		}
	}
	if d.MountedModuleCount >= d.ModuleSlots {
		return infeasible(ReasonSlots, float64(d.MountedModuleCount+1-d.ModuleSlots),
			"no free module slot: %d of %d in use", d.MountedModuleCount, d.ModuleSlots)
	}
	return feasible
}
