package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// ListConflicts returns the user's unresolved conflicts, newest first.
func (e *Engine) ListConflicts(userID string) ([]*syncdb.Conflict, error) {
	return e.db.ListOpenConflicts(userID)
}

// Resolve applies the chosen side of an open conflict to the entity store
// and marks the conflict resolved. A conflict that is absent, not owned by
// the user, or already resolved reports NotFound. The applied change is not
// journaled, so other devices will not see the resolution via pull.
func (e *Engine) Resolve(userID, conflictID, resolution string) error {
	if resolution != syncdb.ResolutionDevice1 && resolution != syncdb.ResolutionDevice2 {
		return fmt.Errorf("invalid resolution: %q", resolution)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := syncdb.GetOpenConflict(tx, userID, conflictID)
	if err != nil {
		return err
	}

	store, ok := e.reg.Lookup(c.EntityType)
	if !ok {
		return fmt.Errorf("unknown entity type: %q", c.EntityType)
	}

	var data json.RawMessage
	switch resolution {
	case syncdb.ResolutionDevice1:
		data = c.DeviceData
	case syncdb.ResolutionDevice2:
		data = c.ServerData
	}

	now := time.Now().UTC()
	// A nil side means the entity had no live server state when the
	// conflict was captured; there is nothing to write back.
	if len(data) > 0 {
		if err := store.Apply(tx, userID, c.EntityID, syncdb.OpUpdate, data, now); err != nil {
			return err
		}
	}

	if err := syncdb.MarkResolved(tx, conflictID, resolution, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.notifier.ConflictResolved(userID, conflictID, resolution)
	return nil
}
