package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

type txn struct {
	reader
	now func() time.Time
}

// save performs the versioned write of one entity. expected is the version
// the caller read; zero creates the row. extra holds additional column values
// written alongside the document.
func (tx *txn) save(ctx context.Context, table, kind, id string, expected int64, doc any, extra map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	cols := []string{"version", "doc"}
	args := []any{expected + 1, string(b)}
	for k, v := range extra {
		cols = append(cols, k)
		args = append(args, v)
	}

	if expected == 0 {
		var exists int
		err := tx.q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id=?`, id).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%s %s: %w", kind, id, store.ErrDuplicate)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(cols)+1), ",")
		_, err = tx.q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, %s) VALUES (%s)`, table, strings.Join(cols, ", "), marks),
			append([]any{id}, args...)...)
		return err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + "=?"
	}
	res, err := tx.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id=? AND version=?`, table, strings.Join(sets, ", ")),
		append(args, id, expected)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var stored int64
	err = tx.q.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id=?`, id).Scan(&stored)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err := store.CheckVersion(kind, id, exists, stored, expected); err != nil {
		return err
	}
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrVersionConflict)
}

func (tx *txn) SaveTask(ctx context.Context, t model.Task) (model.Task, error) {
	t = t.Clone()
	expected := t.Version
	t.Version++
	t.UpdatedAt = tx.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	if err := tx.save(ctx, "tasks", "task", t.ID, expected, t, map[string]any{"status": string(t.Status)}); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (tx *txn) SaveTeam(ctx context.Context, t model.Team) (model.Team, error) {
	t = t.Clone()
	expected := t.Version
	t.Version++
	t.UpdatedAt = tx.now()
	if err := tx.save(ctx, "teams", "team", t.ID, expected, t, nil); err != nil {
		return model.Team{}, err
	}
	return t, nil
}

func (tx *txn) SaveVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v = v.Clone()
	expected := v.Version
	v.Version++
	v.UpdatedAt = tx.now()
	if err := tx.save(ctx, "vehicles", "vehicle", v.ID, expected, v, nil); err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func (tx *txn) SaveDevice(ctx context.Context, d model.Device) (model.Device, error) {
	d = d.Clone()
	expected := d.Version
	d.Version++
	d.UpdatedAt = tx.now()
	if err := tx.save(ctx, "devices", "device", d.ID, expected, d, nil); err != nil {
		return model.Device{}, err
	}
	return d, nil
}

func (tx *txn) SaveModule(ctx context.Context, m model.Module) (model.Module, error) {
	m = m.Clone()
	expected := m.Version
	m.Version++
	m.UpdatedAt = tx.now()
	if err := tx.save(ctx, "modules", "module", m.ID, expected, m, nil); err != nil {
		return model.Module{}, err
	}
	return m, nil
}

func (tx *txn) InsertLoad(ctx context.Context, rec model.LoadRecord) error {
	var vid string
	err := tx.q.QueryRowContext(ctx, `SELECT vehicle_id FROM loads WHERE device_id=?`, rec.DeviceID).Scan(&vid)
	if err == nil {
		return fmt.Errorf("device %s already loaded on %s: %w", rec.DeviceID, vid, store.ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = tx.now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx, `INSERT INTO loads (vehicle_id, device_id, doc) VALUES (?, ?, ?)`, rec.VehicleID, rec.DeviceID, string(b))
	return err
}

func (tx *txn) DeleteLoad(ctx context.Context, vehicleID, deviceID string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM loads WHERE vehicle_id=? AND device_id=?`, vehicleID, deviceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("load %s/%s: %w", vehicleID, deviceID, store.ErrNotFound)
	}
	return nil
}

func (tx *txn) InsertMount(ctx context.Context, rec model.MountRecord) error {
	var n int
	if err := tx.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM mounts WHERE device_id=? AND slot=?`, rec.DeviceID, rec.Slot).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("slot %s/%d: %w", rec.DeviceID, rec.Slot, store.ErrDuplicate)
	}
	var did string
	err := tx.q.QueryRowContext(ctx, `SELECT device_id FROM mounts WHERE module_id=?`, rec.ModuleID).Scan(&did)
	if err == nil {
		return fmt.Errorf("module %s already mounted on %s: %w", rec.ModuleID, did, store.ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if rec.MountedAt.IsZero() {
		rec.MountedAt = tx.now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx, `INSERT INTO mounts (device_id, slot, module_id, doc) VALUES (?, ?, ?, ?)`,
		rec.DeviceID, rec.Slot, rec.ModuleID, string(b))
	return err
}

func (tx *txn) DeleteMount(ctx context.Context, deviceID string, slot int) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM mounts WHERE device_id=? AND slot=?`, deviceID, slot)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("slot %s/%d: %w", deviceID, slot, store.ErrNotFound)
	}
	return nil
}

func (tx *txn) InsertDispatch(ctx context.Context, rec model.DispatchRecord) error {
	var n int
	if err := tx.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatches WHERE id=?`, rec.ID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("dispatch %s: %w", rec.ID, store.ErrDuplicate)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = tx.now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx, `INSERT INTO dispatches (id, task_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.CreatedAt.UnixNano(), string(b))
	return err
}

func (tx *txn) UpdateDispatch(ctx context.Context, rec model.DispatchRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := tx.q.ExecContext(ctx, `UPDATE dispatches SET doc=? WHERE id=?`, string(b), rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dispatch %s: %w", rec.ID, store.ErrNotFound)
	}
	return nil
}
