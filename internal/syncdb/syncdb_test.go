package syncdb

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	db, err := OpenExisting(conn)
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// --- User tests ---

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)
	u, err := db.CreateUser("Alice@Example.COM")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email not lowercased: %s", u.Email)
	}
	if u.ID == "" {
		t.Error("empty user ID")
	}

	// Duplicate email fails
	if _, err := db.CreateUser("alice@example.com"); err == nil {
		t.Error("expected duplicate email to fail")
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	created, _ := db.CreateUser("bob@test.com")

	u, err := db.GetUserByEmail("BOB@test.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Errorf("wrong user: %+v", u)
	}

	missing, err := db.GetUserByEmail("nobody@test.com")
	if err != nil {
		t.Fatalf("get missing user: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

// --- API key tests ---

func TestAPIKeyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("key@test.com")

	plaintext, ak, err := db.GenerateAPIKey(u.ID, "laptop", nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if ak.Name != "laptop" {
		t.Errorf("key name: %s", ak.Name)
	}

	gotKey, gotUser, err := db.VerifyAPIKey(plaintext)
	if err != nil {
		t.Fatalf("verify key: %v", err)
	}
	if gotKey == nil || gotUser == nil {
		t.Fatal("expected key and user")
	}
	if gotUser.ID != u.ID {
		t.Errorf("wrong user: %s", gotUser.ID)
	}
	if gotKey.ID != ak.ID {
		t.Errorf("wrong key: %s", gotKey.ID)
	}
}

func TestVerifyAPIKeyInvalid(t *testing.T) {
	db := newTestDB(t)
	u, _ := db.CreateUser("key2@test.com")
	db.GenerateAPIKey(u.ID, "laptop", nil)

	gotKey, gotUser, err := db.VerifyAPIKey("kp_live_definitely_not_a_real_key")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if gotKey != nil || gotUser != nil {
		t.Error("expected nil result for bad key")
	}
}
