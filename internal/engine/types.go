package engine

import (
	"encoding/json"
	"time"
)

// ClientChange is one device-proposed mutation in a push batch. AsOf is the
// point in time the client believes it was editing against; it drives
// staleness detection.
type ClientChange struct {
	EntityType string
	EntityID   string
	Operation  string
	Data       json.RawMessage
	AsOf       time.Time
}

// PushResult summarises a push batch. A push never fails wholesale on
// per-change problems; it degrades to these counts.
type PushResult struct {
	Applied   int
	Conflicts int
	Errors    []string
	SyncTime  time.Time
}

// Change is one journal entry as delivered to a pulling device.
type Change struct {
	EntityID  string
	Operation string
	Data      json.RawMessage
	Timestamp time.Time
}

// PullResult carries the changes a device has not seen yet, grouped by
// entity type, plus the device's new checkpoint.
type PullResult struct {
	Changes      map[string][]Change
	SyncTime     time.Time
	HasConflicts bool
}
