package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/queue"
)

// UploadHandler handles pending upload operations.
type UploadHandler struct {
	queue *queue.Queue
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(q *queue.Queue) *UploadHandler {
	return &UploadHandler{queue: q}
}

// ListUploads handles GET /uploads
// Optional ?status=pending|synced filters the result.
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.UploadStatus(r.URL.Query().Get("status"))
	if status != "" && status != models.UploadStatusPending && status != models.UploadStatusSynced {
		http.Error(w, "Invalid status: must be 'pending' or 'synced'", http.StatusBadRequest)
		return
	}

	uploads, err := h.queue.ListUploads(status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"total":   len(uploads),
	})
}

// CreateUpload handles POST /uploads
func (h *UploadHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.queue.EnqueueUpload(request.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	upload, err := h.queue.GetUpload(id.String())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}

// GetUpload handles GET /uploads/{id}
func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upload, err := h.queue.GetUpload(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, upload)
}

// DeleteUpload handles DELETE /uploads/{id}
func (h *UploadHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.queue.DeleteUpload(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}

// RetryUpload handles POST /uploads/{id}/retry
// Resets retry state so the next sync pass attempts the record immediately.
func (h *UploadHandler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if err := h.queue.RetryUpload(id); err != nil {
		writeError(w, err)
		return
	}

	upload, err := h.queue.GetUpload(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, upload)
}

// ListAttempts handles GET /uploads/{id}/attempts
// Returns the submission history for one upload, newest first.
func (h *UploadHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if _, err := h.queue.GetUpload(id); err != nil {
		writeError(w, err)
		return
	}

	attempts, err := h.queue.Repository().ListSyncAttempts(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
		"total":    len(attempts),
	})
}
