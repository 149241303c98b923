package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// MemoryStore keeps resource state in immutable snapshots. Readers load the
// current snapshot atomically and never wait; writers are serialised and
// publish a new snapshot when their transaction succeeds.
type MemoryStore struct {
	mu  sync.Mutex
	cur atomic.Pointer[snapshot]
	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
	s.cur.Store(newSnapshot())
	return s
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.cur.Load().clone()
	if err := fn(&memTx{snapshot: work, now: s.now}); err != nil {
		return err
	}
	s.cur.Store(work)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetTask(ctx context.Context, id string) (model.Task, error) {
	return s.cur.Load().GetTask(ctx, id)
}

func (s *MemoryStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.cur.Load().ListTasks(ctx)
}

func (s *MemoryStore) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return s.cur.Load().GetTeam(ctx, id)
}

func (s *MemoryStore) ListTeams(ctx context.Context) ([]model.Team, error) {
	return s.cur.Load().ListTeams(ctx)
}

func (s *MemoryStore) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	return s.cur.Load().GetVehicle(ctx, id)
}

func (s *MemoryStore) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.cur.Load().ListVehicles(ctx)
}

func (s *MemoryStore) GetDevice(ctx context.Context, id string) (model.Device, error) {
	return s.cur.Load().GetDevice(ctx, id)
}

func (s *MemoryStore) GetModule(ctx context.Context, id string) (model.Module, error) {
	return s.cur.Load().GetModule(ctx, id)
}

func (s *MemoryStore) LoadsOnVehicle(ctx context.Context, vehicleID string) ([]model.LoadRecord, error) {
	return s.cur.Load().LoadsOnVehicle(ctx, vehicleID)
}

func (s *MemoryStore) MountsOnDevice(ctx context.Context, deviceID string) ([]model.MountRecord, error) {
	return s.cur.Load().MountsOnDevice(ctx, deviceID)
}

func (s *MemoryStore) GetDispatch(ctx context.Context, id string) (model.DispatchRecord, error) {
	return s.cur.Load().GetDispatch(ctx, id)
}

func (s *MemoryStore) DispatchesForTask(ctx context.Context, taskID string) ([]model.DispatchRecord, error) {
	return s.cur.Load().DispatchesForTask(ctx, taskID)
}

type snapshot struct {
	tasks      map[string]model.Task
	teams      map[string]model.Team
	vehicles   map[string]model.Vehicle
	devices    map[string]model.Device
	modules    map[string]model.Module
	loads      map[string]map[string]model.LoadRecord // vehicle -> device
	mounts     map[string]map[int]model.MountRecord   // device -> slot
	dispatches map[string]model.DispatchRecord
}

func newSnapshot() *snapshot {
	return &snapshot{
		tasks:      map[string]model.Task{},
		teams:      map[string]model.Team{},
		vehicles:   map[string]model.Vehicle{},
		devices:    map[string]model.Device{},
		modules:    map[string]model.Module{},
		loads:      map[string]map[string]model.LoadRecord{},
		mounts:     map[string]map[int]model.MountRecord{},
		dispatches: map[string]model.DispatchRecord{},
	}
}

// clone copies the maps. Entities are stored by value and cloned on every
// write, so sharing them between snapshots is safe.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		tasks:      copyMap(s.tasks),
		teams:      copyMap(s.teams),
		vehicles:   copyMap(s.vehicles),
		devices:    copyMap(s.devices),
		modules:    copyMap(s.modules),
		loads:      make(map[string]map[string]model.LoadRecord, len(s.loads)),
		mounts:     make(map[string]map[int]model.MountRecord, len(s.mounts)),
		dispatches: copyMap(s.dispatches),
	}
	for k, v := range s.loads {
		c.loads[k] = copyMap(v)
	}
	for k, v := range s.mounts {
		c.mounts[k] = copyMap(v)
	}
	return c
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func get[T any](m map[string]T, kind, id string, clone func(T) T) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return clone(v), nil
}

func list[T any](m map[string]T, clone func(T) T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}

func (s *snapshot) GetTask(_ context.Context, id string) (model.Task, error) {
	return get(s.tasks, "task", id, model.Task.Clone)
}

func (s *snapshot) ListTasks(context.Context) ([]model.Task, error) {
	return list(s.tasks, model.Task.Clone), nil
}

func (s *snapshot) GetTeam(_ context.Context, id string) (model.Team, error) {
	return get(s.teams, "team", id, model.Team.Clone)
}

func (s *snapshot) ListTeams(context.Context) ([]model.Team, error) {
	return list(s.teams, model.Team.Clone), nil
}

func (s *snapshot) GetVehicle(_ context.Context, id string) (model.Vehicle, error) {
	return get(s.vehicles, "vehicle", id, model.Vehicle.Clone)
}

func (s *snapshot) ListVehicles(context.Context) ([]model.Vehicle, error) {
	return list(s.vehicles, model.Vehicle.Clone), nil
}

func (s *snapshot) GetDevice(_ context.Context, id string) (model.Device, error) {
	return get(s.devices, "device", id, model.Device.Clone)
}

func (s *snapshot) GetModule(_ context.Context, id string) (model.Module, error) {
	return get(s.modules, "module", id, model.Module.Clone)
}

func (s *snapshot) LoadsOnVehicle(_ context.Context, vehicleID string) ([]model.LoadRecord, error) {
	recs := s.loads[vehicleID]
	out := make([]model.LoadRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *snapshot) MountsOnDevice(_ context.Context, deviceID string) ([]model.MountRecord, error) {
	recs := s.mounts[deviceID]
	out := make([]model.MountRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (s *snapshot) GetDispatch(_ context.Context, id string) (model.DispatchRecord, error) {
	return get(s.dispatches, "dispatch", id, model.DispatchRecord.Clone)
}

func (s *snapshot) DispatchesForTask(_ context.Context, taskID string) ([]model.DispatchRecord, error) {
	var out []model.DispatchRecord
	for _, r := range s.dispatches {
		if r.TaskID == taskID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memTx struct {
	*snapshot
	now func() time.Time
}

// CheckVersion validates a compare-and-swap write. expected is the version the
// caller read; zero asks for creation.
func CheckVersion(kind, id string, exists bool, stored, expected int64) error {
	switch {
	case !exists && expected == 0:
		return nil
	case !exists:
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case expected == 0:
		return fmt.Errorf("%s %s: %w", kind, id, ErrDuplicate)
	case stored != expected:
		return fmt.Errorf("%s %s: stored v%d, write based on v%d: %w", kind, id, stored, expected, ErrVersionConflict)
	}
	return nil
}

func (tx *memTx) SaveTask(_ context.Context, t model.Task) (model.Task, error) {
	cur, ok := tx.tasks[t.ID]
	if err := CheckVersion("task", t.ID, ok, cur.Version, t.Version); err != nil {
		return model.Task{}, err
	}
	t = t.Clone()
	t.Version++
	t.UpdatedAt = tx.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	tx.tasks[t.ID] = t
	return t.Clone(), nil
}

func (tx *memTx) SaveTeam(_ context.Context, t model.Team) (model.Team, error) {
	cur, ok := tx.teams[t.ID]
	if err := CheckVersion("team", t.ID, ok, cur.Version, t.Version); err != nil {
		return model.Team{}, err
	}
	t = t.Clone()
	t.Version++
	t.UpdatedAt = tx.now()
	tx.teams[t.ID] = t
	return t.Clone(), nil
}

func (tx *memTx) SaveVehicle(_ context.Context, v model.Vehicle) (model.Vehicle, error) {
	cur, ok := tx.vehicles[v.ID]
	if err := CheckVersion("vehicle", v.ID, ok, cur.Version, v.Version); err != nil {
		return model.Vehicle{}, err
	}
	v = v.Clone()
	v.Version++
	v.UpdatedAt = tx.now()
	tx.vehicles[v.ID] = v
	return v.Clone(), nil
}

func (tx *memTx) SaveDevice(_ context.Context, d model.Device) (model.Device, error) {
	cur, ok := tx.devices[d.ID]
	if err := CheckVersion("device", d.ID, ok, cur.Version, d.Version); err != nil {
		return model.Device{}, err
	}
	d = d.Clone()
	d.Version++
	d.UpdatedAt = tx.now()
	tx.devices[d.ID] = d
	return d.Clone(), nil
}

func (tx *memTx) SaveModule(_ context.Context, m model.Module) (model.Module, error) {
	cur, ok := tx.modules[m.ID]
	if err := CheckVersion("module", m.ID, ok, cur.Version, m.Version); err != nil {
		return model.Module{}, err
	}
	m = m.Clone()
	m.Version++
	m.UpdatedAt = tx.now()
	tx.modules[m.ID] = m
	return m.Clone(), nil
}

func (tx *memTx) InsertLoad(_ context.Context, rec model.LoadRecord) error {
	for vid, recs := range tx.loads {
		if _, ok := recs[rec.DeviceID]; ok {
			return fmt.Errorf("device %s already loaded on %s: %w", rec.DeviceID, vid, ErrDuplicate)
		}
	}
	if tx.loads[rec.VehicleID] == nil {
		tx.loads[rec.VehicleID] = map[string]model.LoadRecord{}
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = tx.now()
	}
	tx.loads[rec.VehicleID][rec.DeviceID] = rec
	return nil
}

func (tx *memTx) DeleteLoad(_ context.Context, vehicleID, deviceID string) error {
	recs := tx.loads[vehicleID]
	if _, ok := recs[deviceID]; !ok {
		return fmt.Errorf("load %s/%s: %w", vehicleID, deviceID, ErrNotFound)
	}
	delete(recs, deviceID)
	return nil
}

func (tx *memTx) InsertMount(_ context.Context, rec model.MountRecord) error {
	if _, ok := tx.mounts[rec.DeviceID][rec.Slot]; ok {
		return fmt.Errorf("slot %s/%d: %w", rec.DeviceID, rec.Slot, ErrDuplicate)
	}
	for did, recs := range tx.mounts {
		for _, r := range recs {
			if r.ModuleID == rec.ModuleID {
				return fmt.Errorf("module %s already mounted on %s: %w", rec.ModuleID, did, ErrDuplicate)
			}
		}
	}
	if tx.mounts[rec.DeviceID] == nil {
		tx.mounts[rec.DeviceID] = map[int]model.MountRecord{}
	}
	if rec.MountedAt.IsZero() {
		rec.MountedAt = tx.now()
	}
	tx.mounts[rec.DeviceID][rec.Slot] = rec
	return nil
}

func (tx *memTx) DeleteMount(_ context.Context, deviceID string, slot int) error {
	recs := tx.mounts[deviceID]
	if _, ok := recs[slot]; !ok {
		return fmt.Errorf("slot %s/%d: %w", deviceID, slot, ErrNotFound)
	}
	delete(recs, slot)
	return nil
}

func (tx *memTx) InsertDispatch(_ context.Context, rec model.DispatchRecord) error {
	if _, ok := tx.dispatches[rec.ID]; ok {
		return fmt.Errorf("dispatch %s: %w", rec.ID, ErrDuplicate)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = tx.now()
	}
	tx.dispatches[rec.ID] = rec.Clone()
	return nil
}

func (tx *memTx) UpdateDispatch(_ context.Context, rec model.DispatchRecord) error {
	if _, ok := tx.dispatches[rec.ID]; !ok {
		return fmt.Errorf("dispatch %s: %w", rec.ID, ErrNotFound)
	}
	tx.dispatches[rec.ID] = rec.Clone()
	return nil
}
