package syncdb

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"
)

func appendTestChange(t *testing.T, db *DB, userID, entityType, entityID, op string, origin *string, at time.Time) *ChangeRecord {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err := AppendChange(tx, userID, entityType, entityID, op, json.RawMessage(`{"id":"`+entityID+`"}`), origin, at)
	if err != nil {
		tx.Rollback()
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return rec
}

func inTx(t *testing.T, db *DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	fn(tx)
}

func TestAppendChangeValidation(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("j1@test.com")

	tx, _ := db.Begin()
	defer tx.Rollback()
	if _, err := AppendChange(tx, u.ID, "knowledge", "k1", "merge", nil, nil, time.Now()); err == nil {
		t.Error("expected invalid operation to fail")
	}
}

func TestChangesSinceOrderingAndExclusion(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("j2@test.com")

	base := time.Now().UTC().Add(-time.Minute)
	devA := "dev-a"
	devB := "dev-b"

	appendTestChange(t, db, u.ID, "knowledge", "k1", OpCreate, &devA, base.Add(1*time.Second))
	appendTestChange(t, db, u.ID, "knowledge", "k2", OpCreate, &devB, base.Add(2*time.Second))
	appendTestChange(t, db, u.ID, "category", "c1", OpCreate, nil, base.Add(3*time.Second)) // server origin
	appendTestChange(t, db, u.ID, "knowledge", "k1", OpUpdate, &devA, base.Add(4*time.Second))

	inTx(t, db, func(tx *sql.Tx) {
		// Device A pulling: sees B's change and the server change, not its own.
		recs, err := ChangesSince(tx, u.ID, base, devA)
		if err != nil {
			t.Fatalf("changes since: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recs))
		}
		if recs[0].EntityID != "k2" || recs[1].EntityID != "c1" {
			t.Errorf("order: %s, %s", recs[0].EntityID, recs[1].EntityID)
		}

		// No exclusion: all four, oldest first.
		all, err := ChangesSince(tx, u.ID, base, "")
		if err != nil {
			t.Fatalf("changes since all: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 records, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].RecordedAt.Before(all[i-1].RecordedAt) {
				t.Error("records out of order")
			}
		}

		// Checkpoint past everything: empty.
		none, err := ChangesSince(tx, u.ID, base.Add(time.Hour), devA)
		if err != nil {
			t.Fatalf("changes since future: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no records, got %d", len(none))
		}
	})
}

func TestChangesSinceScopedToUser(t *testing.T) {
	db := newTestDB(t)
	u1, _ := db.CreateUser("j3@test.com")
	u2, _ := db.CreateUser("j4@test.com")

	base := time.Now().UTC().Add(-time.Minute)
	devA := "dev-a"
	appendTestChange(t, db, u1.ID, "knowledge", "k1", OpCreate, &devA, base.Add(time.Second))

	inTx(t, db, func(tx *sql.Tx) {
		recs, err := ChangesSince(tx, u2.ID, base, "")
		if err != nil {
			t.Fatalf("changes since: %v", err)
		}
		if len(recs) != 0 {
			t.Error("journal leaked across users")
		}
	})
}

func TestCountCompetingChanges(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("j5@test.com")

	base := time.Now().UTC().Add(-time.Minute)
	devA := "dev-a"
	devB := "dev-b"

	appendTestChange(t, db, u.ID, "knowledge", "k1", OpUpdate, &devA, base.Add(10*time.Second))
	appendTestChange(t, db, u.ID, "knowledge", "k1", OpUpdate, nil, base.Add(20*time.Second))
	appendTestChange(t, db, u.ID, "knowledge", "k2", OpUpdate, &devA, base.Add(30*time.Second))

	inTx(t, db, func(tx *sql.Tx) {
		// Device B pushing k1 as of base: A's change and the server change compete.
		n, err := CountCompetingChanges(tx, u.ID, "knowledge", "k1", devB, base)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 competing, got %d", n)
		}

		// Device A pushing k1 as of base: only the server-origin change competes.
		n, err = CountCompetingChanges(tx, u.ID, "knowledge", "k1", devA, base)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 competing, got %d", n)
		}

		// Up-to-date cursor: nothing competes.
		n, err = CountCompetingChanges(tx, u.ID, "knowledge", "k1", devB, base.Add(25*time.Second))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 competing, got %d", n)
		}

		// Different entity is unaffected.
		n, err = CountCompetingChanges(tx, u.ID, "knowledge", "k2", devB, base.Add(35*time.Second))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 competing for k2, got %d", n)
		}
	})
}
