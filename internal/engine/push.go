package engine

import (
	"fmt"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

type pushOutcome int

const (
	outcomeApplied pushOutcome = iota
	outcomeConflict
)

// Push processes a batch of client changes in submission order, each
// independently transactional. Stale changes become conflict records instead
// of entity mutations; apply failures are reported per item and the batch
// continues. Push never advances the device checkpoint.
func (e *Engine) Push(userID, deviceID string, changes []ClientChange) (*PushResult, error) {
	if _, err := e.device(userID, deviceID); err != nil {
		return nil, err
	}

	result := &PushResult{}
	for i, ch := range changes {
		outcome, err := e.pushOne(userID, deviceID, ch)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("change %d (%s/%s): %v", i, ch.EntityType, ch.EntityID, err))
			continue
		}
		switch outcome {
		case outcomeApplied:
			result.Applied++
		case outcomeConflict:
			result.Conflicts++
			e.notifier.ConflictDetected(userID, ch.EntityType, ch.EntityID)
		}
	}
	result.SyncTime = time.Now().UTC()

	e.notifier.SyncCompleted(userID, deviceID, 0, result.Applied)
	return result, nil
}

// pushOne conflict-checks and applies a single change in its own
// transaction. The check and the apply are not atomic with respect to other
// concurrent pushes on the same entity; the journal comparison detects
// stale edits, it does not provide mutual exclusion.
func (e *Engine) pushOne(userID, deviceID string, ch ClientChange) (pushOutcome, error) {
	store, ok := e.reg.Lookup(ch.EntityType)
	if !ok {
		return 0, fmt.Errorf("unknown entity type: %q", ch.EntityType)
	}
	if !syncdb.ValidOperation(ch.Operation) {
		return 0, fmt.Errorf("invalid operation: %q", ch.Operation)
	}
	if ch.EntityID == "" {
		return 0, fmt.Errorf("empty entity id")
	}

	tx, err := e.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	competing, err := syncdb.CountCompetingChanges(tx, userID, ch.EntityType, ch.EntityID, deviceID, ch.AsOf)
	if err != nil {
		return 0, err
	}

	if competing > 0 {
		open, err := syncdb.HasOpenConflict(tx, userID, ch.EntityType, ch.EntityID)
		if err != nil {
			return 0, err
		}
		if !open {
			snapshot, err := store.Snapshot(tx, userID, ch.EntityID)
			if err != nil {
				return 0, err
			}
			if _, err := syncdb.CreateConflict(tx, userID, ch.EntityType, ch.EntityID, ch.Data, deviceID, snapshot); err != nil {
				return 0, err
			}
		}
		// While a conflict is open for the entity, further stale pushes are
		// rejected alongside it rather than recorded as a second divergence.
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit: %w", err)
		}
		return outcomeConflict, nil
	}

	now := time.Now().UTC()
	if err := store.Apply(tx, userID, ch.EntityID, ch.Operation, ch.Data, now); err != nil {
		return 0, err
	}

	if _, err := syncdb.AppendChange(tx, userID, ch.EntityType, ch.EntityID, ch.Operation, ch.Data, &deviceID, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return outcomeApplied, nil
}
