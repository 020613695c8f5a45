package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// ConflictResponse is the JSON shape for a single conflict.
type ConflictResponse struct {
	ID           string          `json:"id"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	DeviceData   json.RawMessage `json:"device_data"`
	DeviceSource string          `json:"device_source"`
	ServerData   json.RawMessage `json:"server_data"`
	ServerSource string          `json:"server_source"`
	CreatedAt    string          `json:"created_at"`
}

// ResolveRequest is the JSON body for POST /v1/sync/conflicts/{id}/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

// handleListConflicts handles GET /v1/sync/conflicts.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	conflicts, err := s.engine.ListConflicts(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("list conflicts", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list conflicts")
		return
	}

	out := make([]ConflictResponse, len(conflicts))
	for i, c := range conflicts {
		out[i] = ConflictResponse{
			ID:           c.ID,
			EntityType:   c.EntityType,
			EntityID:     c.EntityID,
			DeviceData:   c.DeviceData,
			DeviceSource: c.DeviceSource,
			ServerData:   c.ServerData,
			ServerSource: c.ServerSource,
			CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": out})
}

// handleResolveConflict handles POST /v1/sync/conflicts/{id}/resolve.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	conflictID := r.PathValue("id")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.Resolution != syncdb.ResolutionDevice1 && req.Resolution != syncdb.ResolutionDevice2 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "resolution must be device1 or device2")
		return
	}

	if err := s.engine.Resolve(user.UserID, conflictID, req.Resolution); err != nil {
		if errors.Is(err, syncdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "conflict not found or already resolved")
			return
		}
		logFor(r.Context()).Error("resolve conflict", "conflict", conflictID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to resolve conflict")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         conflictID,
		"resolution": req.Resolution,
		"resolved":   true,
	})
}
