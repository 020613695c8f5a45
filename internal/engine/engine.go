// Package engine implements the pull/push synchronization protocol:
// checkpointed pulls from the change journal, conflict-checked pushes, and
// manual conflict resolution.
package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/entity"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/notify"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// DefaultLookback bounds the first pull of a device that has never synced.
const DefaultLookback = 30 * 24 * time.Hour

// Engine coordinates the device registry, change journal, entity stores,
// and conflict store behind the sync operations.
type Engine struct {
	db       *syncdb.DB
	reg      *entity.Registry
	notifier notify.Notifier
}

// New creates an Engine. A nil notifier disables event delivery.
func New(db *syncdb.DB, reg *entity.Registry, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{db: db, reg: reg, notifier: notifier}
}

// Registry exposes the entity registry for request validation at the edge.
func (e *Engine) Registry() *entity.Registry {
	return e.reg
}

// device loads the user's active device or reports NotFound.
func (e *Engine) device(userID, deviceID string) (*syncdb.Device, error) {
	dev, err := e.db.GetDevice(userID, deviceID)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("device %q: %w", deviceID, syncdb.ErrNotFound)
	}
	return dev, nil
}

// RecordServerChange applies a server-originated mutation to its entity
// store and journals it with no origin device, inside one transaction. This
// is the hook the rest of the platform calls whenever it mutates a synced
// entity outside the push path.
func (e *Engine) RecordServerChange(userID, entityType, entityID, operation string, payload json.RawMessage) (*syncdb.ChangeRecord, error) {
	store, ok := e.reg.Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %q", entityType)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := store.Apply(tx, userID, entityID, operation, payload, now); err != nil {
		return nil, err
	}

	rec, err := syncdb.AppendChange(tx, userID, entityType, entityID, operation, payload, nil, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
