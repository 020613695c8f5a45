package syncdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Operations recorded in the change journal.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ValidOperation reports whether op is a journaled operation.
func ValidOperation(op string) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ChangeRecord is one immutable journal entry. OriginDeviceID nil means the
// change originated on the server rather than from a device push.
type ChangeRecord struct {
	ID             int64
	UserID         string
	EntityType     string
	EntityID       string
	Operation      string
	Payload        json.RawMessage
	OriginDeviceID *string
	RecordedAt     time.Time
	Delivered      bool
}

// AppendChange appends one record to the journal within the given transaction.
// The journal is append-only; prior records are never touched.
func AppendChange(tx *sql.Tx, userID, entityType, entityID, operation string, payload json.RawMessage, originDeviceID *string, at time.Time) (*ChangeRecord, error) {
	if !ValidOperation(operation) {
		return nil, fmt.Errorf("invalid operation: %q", operation)
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	res, err := tx.Exec(
		`INSERT INTO change_journal (user_id, entity_type, entity_id, operation, payload, origin_device_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, entityType, entityID, operation, []byte(payload), originDeviceID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("append change: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &ChangeRecord{
		ID:             id,
		UserID:         userID,
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      operation,
		Payload:        payload,
		OriginDeviceID: originDeviceID,
		RecordedAt:     at,
	}, nil
}

// ChangesSince returns the user's journal records with recorded_at strictly
// after since, oldest first. If excludeDeviceID is non-empty, records that
// originated from that device are filtered out (self-echo exclusion);
// server-origin records are always included.
func ChangesSince(tx *sql.Tx, userID string, since time.Time, excludeDeviceID string) ([]ChangeRecord, error) {
	const base = `SELECT id, user_id, entity_type, entity_id, operation, payload, origin_device_id, recorded_at, delivered
		 FROM change_journal WHERE user_id = ? AND recorded_at > ?`

	var rows *sql.Rows
	var err error
	if excludeDeviceID != "" {
		rows, err = tx.Query(
			base+` AND (origin_device_id IS NULL OR origin_device_id != ?) ORDER BY recorded_at ASC, id ASC`,
			userID, since, excludeDeviceID,
		)
	} else {
		rows, err = tx.Query(base+` ORDER BY recorded_at ASC, id ASC`, userID, since)
	}
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var records []ChangeRecord
	for rows.Next() {
		var rec ChangeRecord
		var payload []byte
		var delivered int
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.EntityType, &rec.EntityID, &rec.Operation,
			&payload, &rec.OriginDeviceID, &rec.RecordedAt, &delivered); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		rec.Payload = payload
		rec.Delivered = delivered != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changes iteration: %w", err)
	}
	return records, nil
}

// CountCompetingChanges counts journal records for the same entity that were
// recorded strictly after the given timestamp by an origin other than
// deviceID. Server-origin records count as competing. A non-zero count means
// the pushed change is stale.
func CountCompetingChanges(tx *sql.Tx, userID, entityType, entityID, deviceID string, after time.Time) (int, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM change_journal
		 WHERE user_id = ? AND entity_type = ? AND entity_id = ?
		   AND recorded_at > ?
		   AND (origin_device_id IS NULL OR origin_device_id != ?)`,
		userID, entityType, entityID, after, deviceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count competing changes: %w", err)
	}
	return n, nil
}
