package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/engine"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

const maxPushBatch = 1000

// PullRequest is the JSON body for POST /v1/sync/pull.
type PullRequest struct {
	DeviceID string `json:"device_id"`
	Since    string `json:"since,omitempty"` // RFC3339 checkpoint override
}

// PullChange is one change entry in a pull response.
type PullChange struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// PullResponse is the JSON response for a pull request, changes grouped by
// entity type.
type PullResponse struct {
	Changes      map[string][]PullChange `json:"changes"`
	SyncTime     string                  `json:"sync_time"`
	HasConflicts bool                    `json:"has_conflicts"`
}

// PushRequest is the JSON body for POST /v1/sync/push.
type PushRequest struct {
	DeviceID string        `json:"device_id"`
	Changes  []ChangeInput `json:"changes"`
}

// ChangeInput represents a single change in a push request.
type ChangeInput struct {
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Operation     string          `json:"operation"`
	Data          json.RawMessage `json:"data"`
	AsOfTimestamp string          `json:"as_of_timestamp"`
}

// PushResponse is the JSON response for a push request.
type PushResponse struct {
	Applied   int      `json:"applied"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors"`
	SyncTime  string   `json:"sync_time"`
}

// parseTimestamp accepts RFC3339 with or without sub-second precision.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t, err
}

// handlePull handles POST /v1/sync/pull.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordPullRequest()
	user := getUserFromContext(r.Context())

	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}

	var sinceOverride *time.Time
	if req.Since != "" {
		t, err := parseTimestamp(req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid since timestamp")
			return
		}
		sinceOverride = &t
	}

	result, err := s.engine.Pull(user.UserID, req.DeviceID, sinceOverride)
	if err != nil {
		if errors.Is(err, syncdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not registered")
			return
		}
		logFor(r.Context()).Error("pull", "device", req.DeviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "pull failed")
		return
	}

	resp := PullResponse{
		Changes:      make(map[string][]PullChange, len(result.Changes)),
		SyncTime:     result.SyncTime.Format(time.RFC3339Nano),
		HasConflicts: result.HasConflicts,
	}
	for entityType, changes := range result.Changes {
		out := make([]PullChange, len(changes))
		for i, ch := range changes {
			out[i] = PullChange{
				ID:        ch.EntityID,
				Operation: ch.Operation,
				Data:      ch.Data,
				Timestamp: ch.Timestamp.UTC().Format(time.RFC3339Nano),
			}
		}
		resp.Changes[entityType] = out
	}

	writeJSON(w, http.StatusOK, resp)
}

// handlePush handles POST /v1/sync/push.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}
	if len(req.Changes) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "changes array is empty")
		return
	}
	if len(req.Changes) > maxPushBatch {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(req.Changes), maxPushBatch))
		return
	}

	changes := make([]engine.ClientChange, len(req.Changes))
	for i, ch := range req.Changes {
		asOf, err := parseTimestamp(ch.AsOfTimestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("invalid as_of_timestamp for change %d", i))
			return
		}
		changes[i] = engine.ClientChange{
			EntityType: ch.EntityType,
			EntityID:   ch.EntityID,
			Operation:  ch.Operation,
			Data:       ch.Data,
			AsOf:       asOf,
		}
	}

	result, err := s.engine.Push(user.UserID, req.DeviceID, changes)
	if err != nil {
		if errors.Is(err, syncdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not registered")
			return
		}
		logFor(r.Context()).Error("push", "device", req.DeviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "push failed")
		return
	}

	s.metrics.RecordChangesApplied(int64(result.Applied))
	s.metrics.RecordConflicts(int64(result.Conflicts))

	resp := PushResponse{
		Applied:   result.Applied,
		Conflicts: result.Conflicts,
		Errors:    result.Errors,
		SyncTime:  result.SyncTime.Format(time.RFC3339Nano),
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
