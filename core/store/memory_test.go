package store

import (
	"context"
	"errors"
	"testing"

	"github.com/kilianp07/rescuedispatch/core/model"
)

func seedTeam(t *testing.T, s Store, team model.Team) model.Team {
	t.Helper()
	var out model.Team
	err := s.Update(context.Background(), func(tx Tx) error {
		var err error
		out, err = tx.SaveTeam(context.Background(), team)
		return err
	})
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return out
}

func TestMemoryStore_CreateAndVersion(t *testing.T) {
	s := NewMemoryStore()
	team := seedTeam(t, s, model.Team{ID: "a", Status: model.TeamStandby})
	if team.Version != 1 {
		t.Fatalf("expected version 1 got %d", team.Version)
	}
	got, err := s.GetTeam(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Status != model.TeamStandby {
		t.Fatalf("unexpected team %#v", got)
	}
	if _, err := s.GetTeam(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryStore_StaleWriteRejected(t *testing.T) {
	s := NewMemoryStore()
	stale := seedTeam(t, s, model.Team{ID: "a", Status: model.TeamStandby})
	fresh := stale
	fresh.Status = model.TeamResting
	seedTeam(t, s, fresh)

	stale.Status = model.TeamDeployed
	err := s.Update(context.Background(), func(tx Tx) error {
		_, err := tx.SaveTeam(context.Background(), stale)
		return err
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict got %v", err)
	}
	got, _ := s.GetTeam(context.Background(), "a")
	if got.Status != model.TeamResting || got.Version != 2 {
		t.Fatalf("stale write leaked: %#v", got)
	}
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx Tx) error {
		if _, err := tx.SaveTeam(context.Background(), model.Team{ID: "a"}); err != nil {
			return err
		}
		if err := tx.InsertLoad(context.Background(), model.LoadRecord{VehicleID: "v", DeviceID: "d"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error got %v", err)
	}
	if _, err := s.GetTeam(context.Background(), "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("team must not exist after rollback")
	}
	loads, _ := s.LoadsOnVehicle(context.Background(), "v")
	if len(loads) != 0 {
		t.Fatalf("load must not exist after rollback")
	}
}

func TestMemoryStore_ReadsSeeStagedWrites(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), func(tx Tx) error {
		if _, err := tx.SaveVehicle(context.Background(), model.Vehicle{ID: "v1"}); err != nil {
			return err
		}
		v, err := tx.GetVehicle(context.Background(), "v1")
		if err != nil {
			return err
		}
		if _, err := s.GetVehicle(context.Background(), "v1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("outside readers must not see uncommitted writes")
		}
		_, err = tx.SaveVehicle(context.Background(), v)
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	v, _ := s.GetVehicle(context.Background(), "v1")
	if v.Version != 2 {
		t.Fatalf("expected version 2 got %d", v.Version)
	}
}

func TestMemoryStore_DeviceLoadedOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx Tx) error {
		return tx.InsertLoad(ctx, model.LoadRecord{VehicleID: "v1", DeviceID: "d1"})
	}); err != nil {
		t.Fatalf("first load: %v", err)
	}
	err := s.Update(ctx, func(tx Tx) error {
		return tx.InsertLoad(ctx, model.LoadRecord{VehicleID: "v2", DeviceID: "d1"})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate got %v", err)
	}
}

func TestMemoryStore_MountBijection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx Tx) error {
		return tx.InsertMount(ctx, model.MountRecord{DeviceID: "d1", Slot: 1, ModuleID: "m1"})
	}); err != nil {
		t.Fatalf("mount: %v", err)
	}
	cases := []model.MountRecord{
		{DeviceID: "d1", Slot: 1, ModuleID: "m2"},
		{DeviceID: "d2", Slot: 1, ModuleID: "m1"},
	}
	for _, rec := range cases {
		err := s.Update(ctx, func(tx Tx) error { return tx.InsertMount(ctx, rec) })
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("mount %+v: expected duplicate got %v", rec, err)
		}
	}
}

func TestMemoryStore_ReturnedValuesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Update(ctx, func(tx Tx) error {
		_, err := tx.SaveTask(ctx, model.Task{ID: "t1", RequiredCapabilities: []model.Capability{"A"}})
		return err
	})
	task, _ := s.GetTask(ctx, "t1")
	task.RequiredCapabilities[0] = "B"
	again, _ := s.GetTask(ctx, "t1")
	if again.RequiredCapabilities[0] != "A" {
		t.Fatalf("caller mutation leaked into the store")
	}
}
