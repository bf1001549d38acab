package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/sync"
	"github.com/indianbuild/passport-core/internal/sync/scheduler"
)

// WSSyncBroadcaster is the WebSocket surface used for connectivity events.
// Sync lifecycle events are broadcast by the engine's listener, so both
// manual and scheduled passes emit them exactly once.
type WSSyncBroadcaster interface {
	BroadcastNetworkChanged(online bool)
}

// SyncHandler handles sync status, manual triggers and connectivity reports.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	monitor   *sync.Monitor
	wsHub     WSSyncBroadcaster
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s *scheduler.Scheduler, monitor *sync.Monitor) *SyncHandler {
	return &SyncHandler{
		scheduler: s,
		monitor:   monitor,
	}
}

// SetWebSocketHub sets the WebSocket hub for broadcasting sync events.
func (h *SyncHandler) SetWebSocketHub(wsHub WSSyncBroadcaster) {
	h.wsHub = wsHub
}

// GetStatus handles GET /sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// TriggerSync handles POST /sync/now
// Runs one sync pass immediately and returns its per-record outcomes.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.scheduler.TriggerSync(r.Context())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			writeError(w, err)
			return
		}
		http.Error(w, "Sync failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"offline":   result.Offline,
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"failed":    result.Failed,
		"outcomes":  result.Outcomes,
		"duration":  result.Duration.Milliseconds(),
	})
}

// SetNetworkStatus handles POST /network
// The host shell reports platform connectivity changes here; an
// offline-to-online transition triggers an automatic sync pass.
func (h *SyncHandler) SetNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Online == nil {
		http.Error(w, "Invalid request body: online is required", http.StatusBadRequest)
		return
	}

	changed := h.monitor.Online() != *request.Online
	h.monitor.SetOnline(*request.Online)

	if changed && h.wsHub != nil {
		h.wsHub.BroadcastNetworkChanged(*request.Online)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"online": *request.Online,
	})
}

// GetNetworkStatus handles GET /network
func (h *SyncHandler) GetNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online": h.monitor.Online(),
	})
}
