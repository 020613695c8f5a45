package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// RegisterDeviceRequest is the JSON body for POST /v1/sync/devices.
type RegisterDeviceRequest struct {
	Name     string `json:"name"`
	Class    string `json:"class"`
	DeviceID string `json:"device_id"`
}

// DeviceResponse is the JSON representation of a registered device.
type DeviceResponse struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	Class      string `json:"class"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at"`
}

func deviceResponse(d *syncdb.Device) DeviceResponse {
	resp := DeviceResponse{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Class:     d.Class,
		Active:    d.Active,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if d.LastSyncAt != nil {
		resp.LastSyncAt = d.LastSyncAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

// handleRegisterDevice handles POST /v1/sync/devices. Registration is
// idempotent by device_id: re-registering updates name/class and
// reactivates without resetting the sync checkpoint.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}
	if !syncdb.ValidDeviceClass(req.Class) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "class must be one of web, mobile, desktop")
		return
	}

	dev, err := s.store.RegisterDevice(user.UserID, req.Name, req.Class, req.DeviceID)
	if err != nil {
		if errors.Is(err, syncdb.ErrDeviceIDTaken) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device_id is registered to another account")
			return
		}
		logFor(r.Context()).Error("register device", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to register device")
		return
	}

	s.metrics.RecordDeviceRegistered()
	s.hub.DeviceRegistered(user.UserID, dev.DeviceID, dev.Class)
	writeJSON(w, http.StatusOK, deviceResponse(dev))
}

// handleListDevices handles GET /v1/sync/devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	devices, err := s.store.ListDevices(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("list devices", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list devices")
		return
	}

	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleDeactivateDevice handles DELETE /v1/sync/devices/{deviceID}.
func (s *Server) handleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	deviceID := r.PathValue("deviceID")

	if err := s.store.DeactivateDevice(user.UserID, deviceID); err != nil {
		if errors.Is(err, syncdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
			return
		}
		logFor(r.Context()).Error("deactivate device", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to deactivate device")
		return
	}

	s.hub.DeviceDeactivated(user.UserID, deviceID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
