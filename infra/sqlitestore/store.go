// Package sqlitestore implements core/store.Store on SQLite.
//
// Entities are kept as JSON documents next to their version column. Every
// write is a compare-and-swap (UPDATE ... WHERE id=? AND version=?) inside a
// database transaction, and the write pool is limited to a single connection
// so writers are serialised. File databases run in WAL mode with a separate
// query-only pool, so reads see the last committed state instead of waiting
// for an open Update.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/rescuedispatch/core/logger"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

// Store is a SQLite backed resource-state store.
type Store struct {
	db *sql.DB
	// rdb serves the read methods. It is db itself for in-memory databases,
	// which cannot be shared between pools.
	rdb *sql.DB
	log logger.Logger
	now func() time.Time
}

const readConns = 4

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at dsn and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	v, err := migrate(ctx, db)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (migrate err: %w)", cerr, err)
		}
		return nil, err
	}
	s := &Store{db: db, rdb: db, log: log, now: func() time.Time { return time.Now().UTC() }}
	if !inMemory(dsn) {
		if s.rdb, err = openReadPool(ctx, db, dsn); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	log.Infof("sqlite store %s ready at schema v%d", dsn, v)
	return s, nil
}

func inMemory(dsn string) bool {
	return dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

func openReadPool(ctx context.Context, db *sql.DB, dsn string) (*sql.DB, error) {
	var mode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode = WAL`).Scan(&mode); err != nil {
		return nil, fmt.Errorf("sqlite wal: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil, fmt.Errorf("sqlite wal: journal mode is %s", mode)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	rdb, err := sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, err
	}
	rdb.SetMaxOpenConns(readConns)
	if err := rdb.PingContext(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("sqlite read pool: %w", err)
	}
	return rdb, nil
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Close closes the database.
func (s *Store) Close() error {
	var rerr error
	if s.rdb != s.db {
		rerr = s.rdb.Close()
	}
	return errors.Join(rerr, s.db.Close())
}

// Update implements store.Store. The callback must only use tx: for in-memory
// databases the store's own read methods would wait for the connection held
// by the transaction.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txn{reader: reader{q: sqlTx}, now: s.now}); err != nil {
		if rerr := sqlTx.Rollback(); rerr != nil {
			s.log.Errorf("rollback: %v", rerr)
		}
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) r() reader { return reader{q: s.rdb} }

func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	return s.r().GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) { return s.r().ListTasks(ctx) }

func (s *Store) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return s.r().GetTeam(ctx, id)
}

func (s *Store) ListTeams(ctx context.Context) ([]model.Team, error) { return s.r().ListTeams(ctx) }

func (s *Store) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	return s.r().GetVehicle(ctx, id)
}

func (s *Store) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.r().ListVehicles(ctx)
}

func (s *Store) GetDevice(ctx context.Context, id string) (model.Device, error) {
	return s.r().GetDevice(ctx, id)
}

func (s *Store) GetModule(ctx context.Context, id string) (model.Module, error) {
	return s.r().GetModule(ctx, id)
}

func (s *Store) LoadsOnVehicle(ctx context.Context, vehicleID string) ([]model.LoadRecord, error) {
	return s.r().LoadsOnVehicle(ctx, vehicleID)
}

func (s *Store) MountsOnDevice(ctx context.Context, deviceID string) ([]model.MountRecord, error) {
	return s.r().MountsOnDevice(ctx, deviceID)
}

func (s *Store) GetDispatch(ctx context.Context, id string) (model.DispatchRecord, error) {
	return s.r().GetDispatch(ctx, id)
}

func (s *Store) DispatchesForTask(ctx context.Context, taskID string) ([]model.DispatchRecord, error) {
	return s.r().DispatchesForTask(ctx, taskID)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	q querier
}

func getDoc[T any](ctx context.Context, q querier, table, kind, id string) (T, error) {
	var (
		out T
		doc string
	)
	err := q.QueryRowContext(ctx, `SELECT doc FROM `+table+` WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return out, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r reader) GetTask(ctx context.Context, id string) (model.Task, error) {
	return getDoc[model.Task](ctx, r.q, "tasks", "task", id)
}

func (r reader) ListTasks(ctx context.Context) ([]model.Task, error) {
	return listDocs[model.Task](ctx, r.q, `SELECT doc FROM tasks ORDER BY id`)
}

func (r reader) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return getDoc[model.Team](ctx, r.q, "teams", "team", id)
}

func (r reader) ListTeams(ctx context.Context) ([]model.Team, error) {
	return listDocs[model.Team](ctx, r.q, `SELECT doc FROM teams ORDER BY id`)
}

func (r reader) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	return getDoc[model.Vehicle](ctx, r.q, "vehicles", "vehicle", id)
}

func (r reader) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return listDocs[model.Vehicle](ctx, r.q, `SELECT doc FROM vehicles ORDER BY id`)
}

func (r reader) GetDevice(ctx context.Context, id string) (model.Device, error) {
	return getDoc[model.Device](ctx, r.q, "devices", "device", id)
}

func (r reader) GetModule(ctx context.Context, id string) (model.Module, error) {
	return getDoc[model.Module](ctx, r.q, "modules", "module", id)
}

func (r reader) LoadsOnVehicle(ctx context.Context, vehicleID string) ([]model.LoadRecord, error) {
	out, err := listDocs[model.LoadRecord](ctx, r.q, `SELECT doc FROM loads WHERE vehicle_id=? ORDER BY device_id`, vehicleID)
	if out == nil && err == nil {
		out = []model.LoadRecord{}
	}
	return out, err
}

func (r reader) MountsOnDevice(ctx context.Context, deviceID string) ([]model.MountRecord, error) {
	out, err := listDocs[model.MountRecord](ctx, r.q, `SELECT doc FROM mounts WHERE device_id=? ORDER BY slot`, deviceID)
	if out == nil && err == nil {
		out = []model.MountRecord{}
	}
	return out, err
}

func (r reader) GetDispatch(ctx context.Context, id string) (model.DispatchRecord, error) {
	return getDoc[model.DispatchRecord](ctx, r.q, "dispatches", "dispatch", id)
}

func (r reader) DispatchesForTask(ctx context.Context, taskID string) ([]model.DispatchRecord, error) {
	return listDocs[model.DispatchRecord](ctx, r.q, `SELECT doc FROM dispatches WHERE task_id=? ORDER BY created_at, id`, taskID)
}
