package engine

import (
	"fmt"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// Pull returns everything that changed for the user since the device's
// checkpoint, excluding the device's own echoes, and advances the checkpoint
// to now. The checkpoint advance commits atomically with the journal read,
// and it advances even when nothing is returned. An empty result is a
// normal outcome; callers repeat the operation to catch up.
func (e *Engine) Pull(userID, deviceID string, sinceOverride *time.Time) (*PullResult, error) {
	dev, err := e.device(userID, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	since := now.Add(-DefaultLookback)
	if dev.LastSyncAt != nil {
		since = *dev.LastSyncAt
	}
	if sinceOverride != nil {
		since = *sinceOverride
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	records, err := syncdb.ChangesSince(tx, userID, since, deviceID)
	if err != nil {
		return nil, err
	}

	if err := syncdb.TouchDeviceSync(tx, userID, deviceID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	changes := make(map[string][]Change)
	for _, rec := range records {
		changes[rec.EntityType] = append(changes[rec.EntityType], Change{
			EntityID:  rec.EntityID,
			Operation: rec.Operation,
			Data:      rec.Payload,
			Timestamp: rec.RecordedAt,
		})
	}

	e.notifier.SyncCompleted(userID, deviceID, len(records), 0)

	return &PullResult{
		Changes:  changes,
		SyncTime: now,
		// Conflicts surface through the explicit conflict endpoints, not
		// through pull.
		HasConflicts: false,
	}, nil
}
