package syncdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ServerSource tags the server's side of a conflict, in contrast to a
// device identifier.
const ServerSource = "server"

// Resolution outcomes. Merge and manual are representable but have no
// executable path yet; resolve accepts only the device1/device2 choices.
const (
	ResolutionDevice1 = "device1"
	ResolutionDevice2 = "device2"
	ResolutionMerge   = "merge"
	ResolutionManual  = "manual"
)

// Conflict pairs a device's proposed change against the server state it
// diverged from. Unresolved conflicts wait for an explicit resolve call.
type Conflict struct {
	ID           string
	UserID       string
	EntityType   string
	EntityID     string
	DeviceData   json.RawMessage
	DeviceSource string
	ServerData   json.RawMessage
	ServerSource string
	Resolution   *string
	Resolved     bool
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// CreateConflict inserts an unresolved conflict within the given transaction.
func CreateConflict(tx *sql.Tx, userID, entityType, entityID string, deviceData json.RawMessage, deviceSource string, serverData json.RawMessage) (*Conflict, error) {
	id, err := generateID("cf_")
	if err != nil {
		return nil, fmt.Errorf("generate conflict id: %w", err)
	}
	// Deletes carry no payload; store an empty object rather than NULL.
	if deviceData == nil {
		deviceData = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	var serverBytes []byte
	if serverData != nil {
		serverBytes = []byte(serverData)
	}
	_, err = tx.Exec(
		`INSERT INTO conflicts (id, user_id, entity_type, entity_id, device_data, device_source, server_data, server_source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, entityType, entityID, []byte(deviceData), deviceSource, serverBytes, ServerSource, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conflict: %w", err)
	}

	return &Conflict{
		ID:           id,
		UserID:       userID,
		EntityType:   entityType,
		EntityID:     entityID,
		DeviceData:   deviceData,
		DeviceSource: deviceSource,
		ServerData:   serverData,
		ServerSource: ServerSource,
		CreatedAt:    now,
	}, nil
}

// HasOpenConflict reports whether an unresolved conflict already exists for
// the entity. At most one open conflict per (user, entity type, entity id)
// is kept.
func HasOpenConflict(tx *sql.Tx, userID, entityType, entityID string) (bool, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM conflicts WHERE user_id = ? AND entity_type = ? AND entity_id = ? AND resolved = 0`,
		userID, entityType, entityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check open conflict: %w", err)
	}
	return n > 0, nil
}

// GetOpenConflict returns the user's unresolved conflict with the given id.
// Already-resolved conflicts are treated as absent.
func GetOpenConflict(tx *sql.Tx, userID, conflictID string) (*Conflict, error) {
	c := &Conflict{}
	var deviceData, serverData []byte
	var resolved int
	err := tx.QueryRow(
		`SELECT id, user_id, entity_type, entity_id, device_data, device_source, server_data, server_source, resolution, resolved, resolved_at, created_at
		 FROM conflicts WHERE id = ? AND user_id = ? AND resolved = 0`,
		conflictID, userID,
	).Scan(&c.ID, &c.UserID, &c.EntityType, &c.EntityID, &deviceData, &c.DeviceSource,
		&serverData, &c.ServerSource, &c.Resolution, &resolved, &c.ResolvedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	c.DeviceData = deviceData
	c.ServerData = serverData
	c.Resolved = resolved != 0
	return c, nil
}

// MarkResolved records the chosen resolution within the given transaction.
func MarkResolved(tx *sql.Tx, conflictID, resolution string, at time.Time) error {
	res, err := tx.Exec(
		`UPDATE conflicts SET resolution = ?, resolved = 1, resolved_at = ? WHERE id = ? AND resolved = 0`,
		resolution, at, conflictID,
	)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenConflicts returns the user's unresolved conflicts, newest first.
func (db *DB) ListOpenConflicts(userID string) ([]*Conflict, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, entity_type, entity_id, device_data, device_source, server_data, server_source, resolution, resolved, resolved_at, created_at
		 FROM conflicts WHERE user_id = ? AND resolved = 0 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		c := &Conflict{}
		var deviceData, serverData []byte
		var resolved int
		if err := rows.Scan(&c.ID, &c.UserID, &c.EntityType, &c.EntityID, &deviceData, &c.DeviceSource,
			&serverData, &c.ServerSource, &c.Resolution, &resolved, &c.ResolvedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c.DeviceData = deviceData
		c.ServerData = serverData
		c.Resolved = resolved != 0
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conflicts: iterate: %w", err)
	}
	return conflicts, nil
}
