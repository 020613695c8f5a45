// Package notify is the fire-and-forget event sink for sync outcomes.
// Delivery is best-effort; sync operations never fail because a
// notification could not be sent.
package notify

// Event types broadcast to listening clients.
const (
	EventSyncCompleted     = "sync.completed"
	EventConflictDetected  = "sync.conflict_detected"
	EventConflictResolved  = "sync.conflict_resolved"
	EventDeviceRegistered  = "sync.device_registered"
	EventDeviceDeactivated = "sync.device_deactivated"
)

// Notifier receives sync lifecycle events scoped to one user.
type Notifier interface {
	SyncCompleted(userID, deviceID string, pulled, applied int)
	ConflictDetected(userID, entityType, entityID string)
	ConflictResolved(userID, conflictID, resolution string)
}

// Noop discards all events. Used in tests and when no hub is wired.
type Noop struct{}

func (Noop) SyncCompleted(userID, deviceID string, pulled, applied int) {}
func (Noop) ConflictDetected(userID, entityType, entityID string)       {}
func (Noop) ConflictResolved(userID, conflictID, resolution string)     {}
