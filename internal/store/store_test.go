package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/roach88/rclgo/internal/ir"
)

// createTestStore opens an in-memory store for one test.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, startedAt int64) ir.Run {
	return ir.Run{
		ID:            id,
		ExecutorID:    "ex-1",
		ExecutorKind:  "single_threaded",
		Workers:       1,
		StartedAt:     startedAt,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

func testDispatch(runID, entity, group string, seq, endSeq int64) ir.Dispatch {
	return ir.Dispatch{
		RunID:      runID,
		ExecutorID: "ex-1",
		Node:       "/node",
		EntityID:   "gid-" + entity,
		EntityName: entity,
		EntityKind: "timer",
		GroupID:    group,
		GroupKind:  "mutually_exclusive",
		Seq:        seq,
		EndSeq:     endSeq,
		Outcome:    ir.OutcomeOK,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if i == 0 {
			if err := s.WriteRun(context.Background(), testRun("r1", 1)); err != nil {
				t.Fatalf("WriteRun() failed: %v", err)
			}
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "dispatches"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("got %d runs after reopen, want 1", len(runs))
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": strconv.Itoa(currentSchemaVersion),
	}
	for name, want := range checks {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}

	var index string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_dispatches_group_seq'",
	).Scan(&index)
	if err != nil {
		t.Errorf("migration index missing: %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v, want nil", err)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
	_, err = s.LatestRun(context.Background())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("LatestRun() error = %v, want sql.ErrNoRows", err)
	}
}

func TestOpen_MigratesVersionZeroLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// A log written before any migration: base schema, user_version 0.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	version, err := s.pragma("user_version")
	if err != nil {
		t.Fatal(err)
	}
	if version != strconv.Itoa(currentSchemaVersion) {
		t.Errorf("user_version = %s, want %d", version, currentSchemaVersion)
	}
	var index string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_dispatches_group_seq'",
	).Scan(&index)
	if err != nil {
		t.Errorf("migration index missing after upgrade: %v", err)
	}
}

func TestOpen_InMemoryEnforcesForeignKeys(t *testing.T) {
	s := createTestStore(t)

	fk, err := s.pragma("foreign_keys")
	if err != nil {
		t.Fatal(err)
	}
	if fk != "1" {
		t.Errorf("foreign_keys = %s, want 1", fk)
	}

	// A dispatch of an unknown run violates the runs reference.
	err = s.WriteDispatch(context.Background(), testDispatch("no-such-run", "t", "g", 1, 2))
	if err == nil {
		t.Error("WriteDispatch() for an unknown run succeeded")
	}
}
