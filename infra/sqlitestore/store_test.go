package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
	"github.com/kilianp07/rescuedispatch/infra/logger"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", logger.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveVersioning(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	var team model.Team
	err := s.Update(ctx, func(tx store.Tx) error {
		var err error
		team, err = tx.SaveTeam(ctx, model.Team{ID: "A", TotalPersonnel: 20, Status: model.TeamStandby})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), team.Version)

	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveTeam(ctx, model.Team{ID: "A"})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	stale := team
	err = s.Update(ctx, func(tx store.Tx) error {
		team.Status = model.TeamDeployed
		_, err := tx.SaveTeam(ctx, team)
		return err
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveTeam(ctx, stale)
		return err
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveTeam(ctx, model.Team{ID: "ghost", Version: 3})
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetTeam(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, model.TeamDeployed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	_, err = s.GetTeam(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRollbackOnError(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.SaveTask(ctx, model.Task{ID: "t1", Status: model.TaskPending}); err != nil {
			return err
		}
		task, err := tx.GetTask(ctx, "t1")
		if err != nil {
			return err
		}
		if task.Status != model.TaskPending {
			t.Errorf("staged write not visible: %+v", task)
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestLoadsAndMounts(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.InsertLoad(ctx, model.LoadRecord{VehicleID: "v1", DeviceID: "d1"}); err != nil {
			return err
		}
		if err := tx.InsertLoad(ctx, model.LoadRecord{VehicleID: "v1", DeviceID: "d0"}); err != nil {
			return err
		}
		return tx.InsertMount(ctx, model.MountRecord{DeviceID: "d1", Slot: 0, ModuleID: "m1"})
	})
	require.NoError(t, err)

	loads, err := s.LoadsOnVehicle(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, "d0", loads[0].DeviceID)
	assert.True(t, loads[1].LoadedAt.Equal(now))

	checks := []struct {
		name string
		fn   func(tx store.Tx) error
		want error
	}{
		{"device loaded twice", func(tx store.Tx) error {
			return tx.InsertLoad(ctx, model.LoadRecord{VehicleID: "v2", DeviceID: "d1"})
		}, store.ErrDuplicate},
		{"slot taken", func(tx store.Tx) error {
			return tx.InsertMount(ctx, model.MountRecord{DeviceID: "d1", Slot: 0, ModuleID: "m2"})
		}, store.ErrDuplicate},
		{"module mounted twice", func(tx store.Tx) error {
			return tx.InsertMount(ctx, model.MountRecord{DeviceID: "d2", Slot: 1, ModuleID: "m1"})
		}, store.ErrDuplicate},
		{"missing load", func(tx store.Tx) error { return tx.DeleteLoad(ctx, "v2", "d1") }, store.ErrNotFound},
		{"missing mount", func(tx store.Tx) error { return tx.DeleteMount(ctx, "d1", 3) }, store.ErrNotFound},
	}
	for _, c := range checks {
		if err := s.Update(ctx, c.fn); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v got %v", c.name, c.want, err)
		}
	}

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.DeleteLoad(ctx, "v1", "d1") }))
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.DeleteMount(ctx, "d1", 0) }))
	loads, _ = s.LoadsOnVehicle(ctx, "v1")
	assert.Len(t, loads, 1)
	mounts, err := s.MountsOnDevice(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, mounts)
}

func TestDispatchRecords(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	t0 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.InsertDispatch(ctx, model.DispatchRecord{ID: "d2", TaskID: "t1", TeamID: "B", CreatedAt: t0.Add(time.Minute)}); err != nil {
			return err
		}
		return tx.InsertDispatch(ctx, model.DispatchRecord{ID: "d1", TaskID: "t1", TeamID: "A", VehicleIDs: []string{"v1"}, CreatedAt: t0})
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.InsertDispatch(ctx, model.DispatchRecord{ID: "d1", TaskID: "t1"})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	recs, err := s.DispatchesForTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "d1", recs[0].ID)

	done := t0.Add(time.Hour)
	recs[0].CompletedAt = &done
	recs[0].Result = map[string]any{"outcome": "completed"}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.UpdateDispatch(ctx, recs[0]) }))

	got, err := s.GetDispatch(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, got.Active())
	assert.Equal(t, "completed", got.Result["outcome"])
	assert.Equal(t, []string{"v1"}, got.VehicleIDs)
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(ctx, path, logger.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveVehicle(ctx, model.Vehicle{ID: "v1", MaxWeightKg: 500, CurrentWeightKg: 40, Status: model.VehicleAvailable})
		return err
	}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, logger.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	v, err := s.GetVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, v.CurrentWeightKg)
	assert.Equal(t, int64(1), v.Version)
}

func TestReadsDuringUpdate(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"), logger.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveTeam(ctx, model.Team{ID: "A", TotalPersonnel: 20, Status: model.TeamStandby})
		return err
	}))

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, func(tx store.Tx) error {
			team, err := tx.GetTeam(ctx, "A")
			if err != nil {
				return err
			}
			team.Status = model.TeamDeployed
			if _, err := tx.SaveTeam(ctx, team); err != nil {
				return err
			}
			close(inTx)
			<-release
			return nil
		})
	}()
	<-inTx

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	team, err := s.GetTeam(rctx, "A")
	cancel()
	require.NoError(t, err, "reads must not wait for the open transaction")
	assert.Equal(t, model.TeamStandby, team.Status, "uncommitted writes are not visible")

	close(release)
	require.NoError(t, <-done)
	team, err = s.GetTeam(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, model.TeamDeployed, team.Status)
	assert.Equal(t, int64(2), team.Version)
}
