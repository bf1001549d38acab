// Package handlers provides REST API handlers for the offline submission
// queue: drafts, pending uploads, product cache and sync control.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/queue"
)

// DraftHandler handles draft operations.
type DraftHandler struct {
	queue *queue.Queue
}

// NewDraftHandler creates a new DraftHandler.
func NewDraftHandler(q *queue.Queue) *DraftHandler {
	return &DraftHandler{queue: q}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.Code(err) {
	case errors.ErrDraftNotFound, errors.ErrUploadNotFound, errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrInvalid, errors.ErrValidation:
		status = http.StatusBadRequest
	case errors.ErrSyncInProgress:
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(errors.Code(err)),
	})
}

// ListDrafts handles GET /drafts
func (h *DraftHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	drafts, err := h.queue.ListDrafts()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"drafts": drafts,
		"total":  len(drafts),
	})
}

// CreateDraft handles POST /drafts
func (h *DraftHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
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

	id, err := h.queue.SaveDraft(request.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	draft, err := h.queue.GetDraft(id.String())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, draft)
}

// GetDraft handles GET /drafts/{id}
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	draft, err := h.queue.GetDraft(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// UpdateDraft handles PUT /drafts/{id}
func (h *DraftHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
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

	id := r.PathValue("id")
	if err := h.queue.UpdateDraft(id, request.Payload); err != nil {
		writeError(w, err)
		return
	}

	draft, err := h.queue.GetDraft(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// DeleteDraft handles DELETE /drafts/{id}
func (h *DraftHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.queue.DeleteDraft(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}

// PromoteDraft handles POST /drafts/{id}/submit
// Moves the draft into the pending upload queue in a single transaction.
func (h *DraftHandler) PromoteDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upload, err := h.queue.PromoteDraft(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}
