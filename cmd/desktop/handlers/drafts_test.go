package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/indianbuild/passport-core/internal/db"
	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/queue"
)

// newTestQueue builds an in-memory queue for handler tests.
func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return queue.New(repo)
}

// newDraftMux registers draft routes the way the desktop server does.
func newDraftMux(q *queue.Queue) *http.ServeMux {
	h := NewDraftHandler(q)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /drafts", h.CreateDraft)
	mux.HandleFunc("GET /drafts", h.ListDrafts)
	mux.HandleFunc("GET /drafts/{id}", h.GetDraft)
	mux.HandleFunc("PUT /drafts/{id}", h.UpdateDraft)
	mux.HandleFunc("DELETE /drafts/{id}", h.DeleteDraft)
	mux.HandleFunc("POST /drafts/{id}/submit", h.PromoteDraft)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestDraftHandler_Lifecycle(t *testing.T) {
	mux := newDraftMux(newTestQueue(t))

	// Create
	w := doJSON(t, mux, http.MethodPost, "/drafts", map[string]interface{}{
		"payload": map[string]interface{}{"productName": "Cement 50kg", "quantity": 10},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateDraft status = %d, body = %s", w.Code, w.Body.String())
	}

	var created models.Draft
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode created draft: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created draft has empty ID")
	}

	// List
	w = doJSON(t, mux, http.MethodGet, "/drafts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ListDrafts status = %d", w.Code)
	}
	var listResp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Total != 1 {
		t.Errorf("total = %d, want 1", listResp.Total)
	}

	// Update
	w = doJSON(t, mux, http.MethodPut, "/drafts/"+created.ID.String(), map[string]interface{}{
		"payload": map[string]interface{}{"productName": "Cement 50kg", "quantity": 25},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("UpdateDraft status = %d, body = %s", w.Code, w.Body.String())
	}

	// Get reflects the update
	w = doJSON(t, mux, http.MethodGet, "/drafts/"+created.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GetDraft status = %d", w.Code)
	}
	var fetched models.Draft
	json.Unmarshal(w.Body.Bytes(), &fetched)
	var payload map[string]interface{}
	json.Unmarshal(fetched.Payload, &payload)
	if payload["quantity"] != float64(25) {
		t.Errorf("quantity after update = %v, want 25", payload["quantity"])
	}

	// Delete, then delete again: both succeed
	for i := 0; i < 2; i++ {
		w = doJSON(t, mux, http.MethodDelete, "/drafts/"+created.ID.String(), nil)
		if w.Code != http.StatusOK {
			t.Errorf("DeleteDraft #%d status = %d", i+1, w.Code)
		}
	}

	// Gone
	w = doJSON(t, mux, http.MethodGet, "/drafts/"+created.ID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GetDraft after delete status = %d, want 404", w.Code)
	}
}

func TestDraftHandler_UpdateMissingDraft(t *testing.T) {
	mux := newDraftMux(newTestQueue(t))

	w := doJSON(t, mux, http.MethodPut, "/drafts/d5a4f0b7-2e6a-4c9d-b154-8f3a0e2d6c47",
		map[string]interface{}{"payload": map[string]interface{}{"x": 1}})
	if w.Code != http.StatusNotFound {
		t.Errorf("UpdateDraft on missing id status = %d, want 404", w.Code)
	}
}

func TestDraftHandler_EmptyPayloadRejected(t *testing.T) {
	mux := newDraftMux(newTestQueue(t))

	w := doJSON(t, mux, http.MethodPost, "/drafts", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("CreateDraft without payload status = %d, want 400", w.Code)
	}
}

func TestDraftHandler_Promote(t *testing.T) {
	q := newTestQueue(t)
	mux := newDraftMux(q)

	w := doJSON(t, mux, http.MethodPost, "/drafts", map[string]interface{}{
		"payload": map[string]interface{}{"productName": "Steel beam"},
	})
	var created models.Draft
	json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, mux, http.MethodPost, "/drafts/"+created.ID.String()+"/submit", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("PromoteDraft status = %d, body = %s", w.Code, w.Body.String())
	}

	var upload models.PendingUpload
	json.Unmarshal(w.Body.Bytes(), &upload)
	if upload.Status != models.UploadStatusPending {
		t.Errorf("promoted upload status = %q, want pending", upload.Status)
	}

	// Draft is consumed
	w = doJSON(t, mux, http.MethodGet, "/drafts/"+created.ID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GetDraft after promote status = %d, want 404", w.Code)
	}

	// Second promote of the same id fails; nothing new is enqueued
	w = doJSON(t, mux, http.MethodPost, "/drafts/"+created.ID.String()+"/submit", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second PromoteDraft status = %d, want 404", w.Code)
	}

	uploads, err := q.ListUploads("")
	if err != nil {
		t.Fatalf("ListUploads error = %v", err)
	}
	if len(uploads) != 1 {
		t.Errorf("len(uploads) = %d, want 1", len(uploads))
	}
}
