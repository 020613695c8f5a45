package syncdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceIDTaken is returned when a device identifier is already
// registered to a different user. Device identifiers are unique across the
// whole system.
var ErrDeviceIDTaken = errors.New("device id already registered")

// Device classes accepted at registration.
const (
	DeviceClassWeb     = "web"
	DeviceClassMobile  = "mobile"
	DeviceClassDesktop = "desktop"
)

// ValidDeviceClass reports whether the given class is one of the accepted values.
func ValidDeviceClass(class string) bool {
	switch class {
	case DeviceClassWeb, DeviceClassMobile, DeviceClassDesktop:
		return true
	}
	return false
}

// Device is a registered client installation. DeviceID is the caller-supplied
// stable identifier; ID is the server-assigned row id.
type Device struct {
	ID         string
	UserID     string
	Name       string
	Class      string
	DeviceID   string
	LastSyncAt *time.Time
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RegisterDevice creates a device for the user, or reactivates and updates
// the existing one with the same device identifier. Re-registration keeps
// the stored last-sync checkpoint.
func (db *DB) RegisterDevice(userID, name, class, deviceID string) (*Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if !ValidDeviceClass(class) {
		return nil, fmt.Errorf("invalid device class: %q", class)
	}

	existing, err := db.getDeviceAny(userID, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing != nil {
		_, err := db.conn.Exec(
			`UPDATE devices SET name = ?, class = ?, active = 1, updated_at = ? WHERE id = ?`,
			name, class, now, existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update device: %w", err)
		}
		existing.Name = name
		existing.Class = class
		existing.Active = true
		existing.UpdatedAt = now
		return existing, nil
	}

	var otherOwner string
	err = db.conn.QueryRow(`SELECT user_id FROM devices WHERE device_id = ?`, deviceID).Scan(&otherOwner)
	if err == nil {
		return nil, fmt.Errorf("device %q: %w", deviceID, ErrDeviceIDTaken)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check device id: %w", err)
	}

	id, err := generateID("d_")
	if err != nil {
		return nil, fmt.Errorf("generate device id: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO devices (id, user_id, name, class, device_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, userID, name, class, deviceID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}

	return &Device{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Class:     class,
		DeviceID:  deviceID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetDevice returns the user's active device with the given device identifier,
// or nil if absent or deactivated.
func (db *DB) GetDevice(userID, deviceID string) (*Device, error) {
	d, err := db.getDeviceAny(userID, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.Active {
		return nil, nil
	}
	return d, nil
}

// getDeviceAny returns the device regardless of its active flag.
func (db *DB) getDeviceAny(userID, deviceID string) (*Device, error) {
	d := &Device{}
	var active int
	err := db.conn.QueryRow(
		`SELECT id, user_id, name, class, device_id, last_sync_at, active, created_at, updated_at
		 FROM devices WHERE user_id = ? AND device_id = ?`,
		userID, deviceID,
	).Scan(&d.ID, &d.UserID, &d.Name, &d.Class, &d.DeviceID, &d.LastSyncAt, &active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	d.Active = active != 0
	return d, nil
}

// ListDevices returns the user's active devices, most recently synced first.
// Devices that have never synced sort last.
func (db *DB) ListDevices(userID string) ([]*Device, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, class, device_id, last_sync_at, active, created_at, updated_at
		 FROM devices WHERE user_id = ? AND active = 1
		 ORDER BY last_sync_at IS NULL, last_sync_at DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d := &Device{}
		var active int
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Class, &d.DeviceID, &d.LastSyncAt, &active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.Active = active != 0
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: iterate: %w", err)
	}
	return devices, nil
}

// DeactivateDevice soft-removes a device. The row is kept because journal
// history references it. Returns ErrNotFound if the device does not belong
// to the user.
func (db *DB) DeactivateDevice(userID, deviceID string) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		`UPDATE devices SET active = 0, updated_at = ? WHERE user_id = ? AND device_id = ? AND active = 1`,
		now, userID, deviceID,
	)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchDeviceSync sets the device's last-sync checkpoint within the given
// transaction, so pull can commit it atomically with the journal read.
func TouchDeviceSync(tx *sql.Tx, userID, deviceID string, t time.Time) error {
	res, err := tx.Exec(
		`UPDATE devices SET last_sync_at = ?, updated_at = ? WHERE user_id = ? AND device_id = ?`,
		t, t, userID, deviceID,
	)
	if err != nil {
		return fmt.Errorf("touch device sync: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
