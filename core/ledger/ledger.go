// Package ledger maintains the live load totals of vehicles and devices and
// gates every load and mount.
//
// CanLoad and CanMount read the store snapshot and never mutate. The commit
// paths serialise per vehicle or per device, re-check feasibility inside the
// store transaction and write the aggregate together with its record. A
// vehicle or device whose totals drift from its records is halted until
// Reconcile recomputes them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/rescuedispatch/core/logger"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/monitoring"
	"github.com/kilianp07/rescuedispatch/core/store"
)

// ErrInvariantViolation reports live totals that no longer match the sum of
// loaded or mounted items, or a mutation refused on a halted aggregate.
var ErrInvariantViolation = errors.New("capacity invariant violation")

// errInfeasible aborts a commit transaction after a failed re-check.
var errInfeasible = errors.New("infeasible")

const (
	kindVehicle = "vehicle"
	kindDevice  = "device"
)

// Ledger is the capacity ledger.
type Ledger struct {
	store    store.Store
	log      logger.Logger
	vehicles keyedMutex
	devices  keyedMutex

	haltMu sync.RWMutex
	halted map[string]error
}

// New returns a ledger over s.
func New(s store.Store, log logger.Logger) *Ledger {
	return &Ledger{store: s, log: log, halted: make(map[string]error)}
}

func haltKey(kind, id string) string { return kind + ":" + id }

func (l *Ledger) haltErr(kind, id string) error {
	l.haltMu.RLock()
	defer l.haltMu.RUnlock()
	return l.halted[haltKey(kind, id)]
}

// Halted reports whether the vehicle or device refuses mutation.
func (l *Ledger) Halted(kind, id string) bool { return l.haltErr(kind, id) != nil }

func (l *Ledger) halt(kind, id string, cause error) error {
	err := fmt.Errorf("%w: %s %s halted: %v", ErrInvariantViolation, kind, id, cause)
	l.haltMu.Lock()
	if _, ok := l.halted[haltKey(kind, id)]; !ok {
		haltedAggregates.WithLabelValues(kind).Inc()
	}
	l.halted[haltKey(kind, id)] = err
	l.haltMu.Unlock()
	invariantViolations.WithLabelValues(kind).Inc()
	l.log.Errorf("%v", err)
	monitoring.CaptureException(err, map[string]string{"kind": kind, "id": id})
	return err
}

func (l *Ledger) lift(kind, id string) {
	l.haltMu.Lock()
	if _, ok := l.halted[haltKey(kind, id)]; ok {
		delete(l.halted, haltKey(kind, id))
		haltedAggregates.WithLabelValues(kind).Dec()
	}
	l.haltMu.Unlock()
}

// CanLoad reports whether the device can be loaded on the vehicle now.
func (l *Ledger) CanLoad(ctx context.Context, vehicleID, deviceID string) (Feasibility, error) {
	v, err := l.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return Feasibility{}, err
	}
	d, err := l.store.GetDevice(ctx, deviceID)
	if err != nil {
		return Feasibility{}, err
	}
	if herr := l.haltErr(kindVehicle, vehicleID); herr != nil {
		return infeasible(ReasonHalted, 0, "%v", herr), nil
	}
	return CheckLoad(v, d), nil
}

// CanMount reports whether the module can be mounted on the device slot now.
func (l *Ledger) CanMount(ctx context.Context, deviceID, moduleID string, slot int) (Feasibility, error) {
	d, err := l.store.GetDevice(ctx, deviceID)
	if err != nil {
		return Feasibility{}, err
	}
	m, err := l.store.GetModule(ctx, moduleID)
	if err != nil {
		return Feasibility{}, err
	}
	mounts, err := l.store.MountsOnDevice(ctx, deviceID)
	if err != nil {
		return Feasibility{}, err
	}
	if herr := l.haltErr(kindDevice, deviceID); herr != nil {
		return infeasible(ReasonHalted, 0, "%v", herr), nil
	}
	return CheckMount(d, m, slot, mounts), nil
}

// Load binds the device to the vehicle and adds its weight, volume and slot
// to the vehicle totals. An infeasible load returns the failed Feasibility
// and a nil error.
func (l *Ledger) Load(ctx context.Context, vehicleID, deviceID string) (Feasibility, error) {
	unlock := l.vehicles.Lock(vehicleID)
	defer unlock()
	if err := l.haltErr(kindVehicle, vehicleID); err != nil {
		return Feasibility{}, err
	}

	var f Feasibility
	var drift error
	err := l.store.Update(ctx, func(tx store.Tx) error {
		v, err := tx.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if drift = verifyVehicle(ctx, tx, v); drift != nil {
			return drift
		}
		if f = CheckLoad(v, d); !f.OK {
			return errInfeasible
		}
		v.CurrentWeightKg += d.WeightKg
		v.CurrentVolumeM3 += d.VolumeM3
		v.CurrentDeviceCount++
		if _, err := tx.SaveVehicle(ctx, v); err != nil {
			return err
		}
		d.VehicleID = v.ID
		if _, err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		return tx.InsertLoad(ctx, model.LoadRecord{VehicleID: v.ID, DeviceID: d.ID, LoadedAt: time.Now().UTC()})
	})
	return l.finish("load", kindVehicle, vehicleID, f, drift, err)
}

// Unload removes the device from the vehicle and subtracts it from the totals.
func (l *Ledger) Unload(ctx context.Context, vehicleID, deviceID string) error {
	unlock := l.vehicles.Lock(vehicleID)
	defer unlock()
	if err := l.haltErr(kindVehicle, vehicleID); err != nil {
		return err
	}

	var drift error
	err := l.store.Update(ctx, func(tx store.Tx) error {
		v, err := tx.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if d.VehicleID != v.ID {
			return fmt.Errorf("%w: device %s not loaded on vehicle %s", store.ErrNotFound, deviceID, vehicleID)
		}
		if drift = verifyVehicle(ctx, tx, v); drift != nil {
			return drift
		}
		v.CurrentWeightKg = nonNegative(v.CurrentWeightKg - d.WeightKg)
		v.CurrentVolumeM3 = nonNegative(v.CurrentVolumeM3 - d.VolumeM3)
		v.CurrentDeviceCount--
		if _, err := tx.SaveVehicle(ctx, v); err != nil {
			return err
		}
		d.VehicleID = ""
		if _, err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		return tx.DeleteLoad(ctx, v.ID, d.ID)
	})
	_, err = l.finish("unload", kindVehicle, vehicleID, feasible, drift, err)
	return err
}

// Mount places the module in a device slot.
func (l *Ledger) Mount(ctx context.Context, deviceID, moduleID string, slot int) (Feasibility, error) {
	unlock := l.devices.Lock(deviceID)
	defer unlock()
	if err := l.haltErr(kindDevice, deviceID); err != nil {
		return Feasibility{}, err
	}

	var f Feasibility
	var drift error
	err := l.store.Update(ctx, func(tx store.Tx) error {
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		m, err := tx.GetModule(ctx, moduleID)
		if err != nil {
			return err
		}
		mounts, err := tx.MountsOnDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if drift = verifyDevice(d, mounts); drift != nil {
			return drift
		}
		if f = CheckMount(d, m, slot, mounts); !f.OK {
			return errInfeasible
		}
		d.MountedModuleCount++
		if _, err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		m.DeviceID, m.SlotPosition = d.ID, slot
		if _, err := tx.SaveModule(ctx, m); err != nil {
			return err
		}
		return tx.InsertMount(ctx, model.MountRecord{DeviceID: d.ID, Slot: slot, ModuleID: m.ID, MountedAt: time.Now().UTC()})
	})
	return l.finish("mount", kindDevice, deviceID, f, drift, err)
}

// Unmount frees the slot held by the module.
func (l *Ledger) Unmount(ctx context.Context, deviceID, moduleID string) error {
	unlock := l.devices.Lock(deviceID)
	defer unlock()
	if err := l.haltErr(kindDevice, deviceID); err != nil {
		return err
	}

	var drift error
	err := l.store.Update(ctx, func(tx store.Tx) error {
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		m, err := tx.GetModule(ctx, moduleID)
		if err != nil {
			return err
		}
		if m.DeviceID != d.ID {
			return fmt.Errorf("%w: module %s not mounted on device %s", store.ErrNotFound, moduleID, deviceID)
		}
		mounts, err := tx.MountsOnDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if drift = verifyDevice(d, mounts); drift != nil {
			return drift
		}
		d.MountedModuleCount--
		if _, err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		slot := m.SlotPosition
		m.DeviceID, m.SlotPosition = "", 0
		if _, err := tx.SaveModule(ctx, m); err != nil {
			return err
		}
		return tx.DeleteMount(ctx, d.ID, slot)
	})
	_, err = l.finish("unmount", kindDevice, deviceID, feasible, drift, err)
	return err
}

func (l *Ledger) finish(op, kind, id string, f Feasibility, drift, err error) (Feasibility, error) {
	switch {
	case drift != nil:
		operations.WithLabelValues(op, "halted").Inc()
		return Feasibility{}, l.halt(kind, id, drift)
	case errors.Is(err, errInfeasible):
		operations.WithLabelValues(op, "infeasible").Inc()
		infeasibleTotal.WithLabelValues(string(f.Reason)).Inc()
		l.log.Debugw("ledger rejected "+op, map[string]any{kind: id, "reason": f.Reason, "message": f.Message})
		return f, nil
	case err != nil:
		operations.WithLabelValues(op, "error").Inc()
		return Feasibility{}, fmt.Errorf("%s %s %s: %w", op, kind, id, err)
	}
	operations.WithLabelValues(op, "ok").Inc()
	return feasible, nil
}

// Verify compares the vehicle totals with its loaded devices. A drift halts
// the vehicle and returns ErrInvariantViolation.
func (l *Ledger) Verify(ctx context.Context, vehicleID string) error {
	v, err := l.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if drift := verifyVehicle(ctx, l.store, v); drift != nil {
		return l.halt(kindVehicle, vehicleID, drift)
	}
	return l.haltErr(kindVehicle, vehicleID)
}

// VerifyDevice compares the mounted-module count with the mount records.
func (l *Ledger) VerifyDevice(ctx context.Context, deviceID string) error {
	d, err := l.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	mounts, err := l.store.MountsOnDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if drift := verifyDevice(d, mounts); drift != nil {
		return l.halt(kindDevice, deviceID, drift)
	}
	return l.haltErr(kindDevice, deviceID)
}

// Reconcile recomputes the vehicle totals from its load records and lifts a
// halt.
func (l *Ledger) Reconcile(ctx context.Context, vehicleID string) error {
	unlock := l.vehicles.Lock(vehicleID)
	defer unlock()
	err := l.store.Update(ctx, func(tx store.Tx) error {
		v, err := tx.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		w, vol, n, err := loadedTotals(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		v.CurrentWeightKg, v.CurrentVolumeM3, v.CurrentDeviceCount = w, vol, n
		_, err = tx.SaveVehicle(ctx, v)
		return err
	})
	if err != nil {
		return fmt.Errorf("reconcile vehicle %s: %w", vehicleID, err)
	}
	l.lift(kindVehicle, vehicleID)
	l.log.Infof("vehicle %s reconciled", vehicleID)
	return nil
}

// ReconcileDevice recomputes the mounted-module count of a device and lifts
// a halt.
func (l *Ledger) ReconcileDevice(ctx context.Context, deviceID string) error {
	unlock := l.devices.Lock(deviceID)
	defer unlock()
	err := l.store.Update(ctx, func(tx store.Tx) error {
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		mounts, err := tx.MountsOnDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		d.MountedModuleCount = len(mounts)
		_, err = tx.SaveDevice(ctx, d)
		return err
	})
	if err != nil {
		return fmt.Errorf("reconcile device %s: %w", deviceID, err)
	}
	l.lift(kindDevice, deviceID)
	l.log.Infof("device %s reconciled", deviceID)
	return nil
}

func loadedTotals(ctx context.Context, r store.Reader, vehicleID string) (float64, float64, int, error) {
	loads, err := r.LoadsOnVehicle(ctx, vehicleID)
	if err != nil {
		return 0, 0, 0, err
	}
	var w, vol float64
	for _, rec := range loads {
		d, err := r.GetDevice(ctx, rec.DeviceID)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("loaded device %s: %w", rec.DeviceID, err)
		}
		w += d.WeightKg
		vol += d.VolumeM3
	}
	return w, vol, len(loads), nil
}

func verifyVehicle(ctx context.Context, r store.Reader, v model.Vehicle) error {
	w, vol, n, err := loadedTotals(ctx, r, v.ID)
	if err != nil {
		return err
	}
	if math.Abs(w-v.CurrentWeightKg) > tolerance || math.Abs(vol-v.CurrentVolumeM3) > tolerance || n != v.CurrentDeviceCount {
		return fmt.Errorf("totals %s kg / %s m3 / %d devices, loaded items %s kg / %s m3 / %d devices",
			num(v.CurrentWeightKg), num(v.CurrentVolumeM3), v.CurrentDeviceCount, num(w), num(vol), n)
	}
	return nil
}

func verifyDevice(d model.Device, mounts []model.MountRecord) error {
	if d.MountedModuleCount != len(mounts) {
		return fmt.Errorf("mounted count %d, mount records %d", d.MountedModuleCount, len(mounts))
	}
	return nil
}

func nonNegative(v float64) float64 {
	if v < tolerance {
		return 0
	}
	return v
}
