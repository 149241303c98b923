// Package store defines the resource-state store used by the dispatch engine.
//
// Reads return copies of the current state and never block writers. Every
// mutation goes through Update, whose callback runs as one transaction: either
// all writes become visible together or none do. Entity writes are
// compare-and-swap operations on the entity Version; a Version of zero creates
// the entity.
package store

import (
	"context"
	"errors"

	"github.com/kilianp07/rescuedispatch/core/model"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a write was based on a stale version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when inserting a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// Reader exposes read access to resource state.
type Reader interface {
	GetTask(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTeam(ctx context.Context, id string) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	GetDevice(ctx context.Context, id string) (model.Device, error)
	GetModule(ctx context.Context, id string) (model.Module, error)
	LoadsOnVehicle(ctx context.Context, vehicleID string) ([]model.LoadRecord, error)
	MountsOnDevice(ctx context.Context, deviceID string) ([]model.MountRecord, error)
	GetDispatch(ctx context.Context, id string) (model.DispatchRecord, error)
	DispatchesForTask(ctx context.Context, taskID string) ([]model.DispatchRecord, error)
}

// Tx is the write view handed to Update callbacks. Reads through a Tx observe
// the writes already staged in the same transaction.
type Tx interface {
	Reader
	SaveTask(ctx context.Context, t model.Task) (model.Task, error)
	SaveTeam(ctx context.Context, t model.Team) (model.Team, error)
	SaveVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	SaveDevice(ctx context.Context, d model.Device) (model.Device, error)
	SaveModule(ctx context.Context, m model.Module) (model.Module, error)
	InsertLoad(ctx context.Context, rec model.LoadRecord) error
	DeleteLoad(ctx context.Context, vehicleID, deviceID string) error
	InsertMount(ctx context.Context, rec model.MountRecord) error
	DeleteMount(ctx context.Context, deviceID string, slot int) error
	InsertDispatch(ctx context.Context, rec model.DispatchRecord) error
	UpdateDispatch(ctx context.Context, rec model.DispatchRecord) error
}

// Store is a transactional resource-state store.
type Store interface {
	Reader
	// Update runs fn in a transaction. A non-nil error from fn discards
	// every staged write and is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
