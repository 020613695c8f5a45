package syncdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func createTestConflict(t *testing.T, db *DB, userID, entityType, entityID, deviceSource string) *Conflict {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	cf, err := CreateConflict(tx, userID, entityType, entityID,
		json.RawMessage(`{"title":"device version"}`), deviceSource,
		json.RawMessage(`{"title":"server version"}`))
	if err != nil {
		tx.Rollback()
		t.Fatalf("create conflict: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return cf
}

func TestCreateConflict(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("c1@test.com")

	cf := createTestConflict(t, db, u.ID, "knowledge", "k1", "dev-b")
	if cf.ID == "" {
		t.Error("empty conflict ID")
	}
	if cf.ServerSource != ServerSource {
		t.Errorf("server source: %s", cf.ServerSource)
	}
	if cf.Resolved {
		t.Error("new conflict marked resolved")
	}
}

func TestHasOpenConflict(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("c2@test.com")
	cf := createTestConflict(t, db, u.ID, "knowledge", "k1", "dev-b")

	inTx(t, db, func(tx *sql.Tx) {
		open, err := HasOpenConflict(tx, u.ID, "knowledge", "k1")
		if err != nil {
			t.Fatalf("has open: %v", err)
		}
		if !open {
			t.Error("expected open conflict")
		}

		open, err = HasOpenConflict(tx, u.ID, "knowledge", "k2")
		if err != nil {
			t.Fatalf("has open: %v", err)
		}
		if open {
			t.Error("unexpected open conflict for k2")
		}
	})

	// Resolving closes it.
	tx, _ := db.Begin()
	if err := MarkResolved(tx, cf.ID, ResolutionDevice1, time.Now().UTC()); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	tx.Commit()

	inTx(t, db, func(tx *sql.Tx) {
		open, _ := HasOpenConflict(tx, u.ID, "knowledge", "k1")
		if open {
			t.Error("conflict still open after resolution")
		}
	})
}

func TestGetOpenConflict(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("c3@test.com")
	other, _ := db.CreateUser("c3b@test.com")
	cf := createTestConflict(t, db, u.ID, "knowledge", "k1", "dev-b")

	inTx(t, db, func(tx *sql.Tx) {
		got, err := GetOpenConflict(tx, u.ID, cf.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.EntityID != "k1" || got.DeviceSource != "dev-b" {
			t.Errorf("conflict: %+v", got)
		}

		// Other user cannot see it.
		if _, err := GetOpenConflict(tx, other.ID, cf.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if _, err := GetOpenConflict(tx, u.ID, "cf_missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMarkResolvedTwice(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("c4@test.com")
	cf := createTestConflict(t, db, u.ID, "knowledge", "k1", "dev-b")

	tx, _ := db.Begin()
	if err := MarkResolved(tx, cf.ID, ResolutionDevice2, time.Now().UTC()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	tx.Commit()

	tx, _ = db.Begin()
	if err := MarkResolved(tx, cf.ID, ResolutionDevice1, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on re-resolve, got %v", err)
	}
	tx.Rollback()

	// Resolved conflicts are gone from the open list.
	open, err := db.ListOpenConflicts(u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected empty open list, got %d", len(open))
	}
}

func TestListOpenConflictsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("c5@test.com")

	createTestConflict(t, db, u.ID, "knowledge", "k1", "dev-a")
	time.Sleep(20 * time.Millisecond)
	createTestConflict(t, db, u.ID, "tag", "t1", "dev-b")

	open, err := db.ListOpenConflicts(u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(open))
	}
	if open[0].EntityID != "t1" {
		t.Errorf("expected newest first, got %s", open[0].EntityID)
	}
}
