package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
)

func newProductMux(h *ProductHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", h.ListProducts)
	mux.HandleFunc("PUT /products", h.PutProducts)
	mux.HandleFunc("DELETE /products", h.ClearProducts)
	mux.HandleFunc("GET /products/{id}", h.GetProduct)
	return mux
}

func TestProductHandler_CacheRoundTrip(t *testing.T) {
	mux := newProductMux(NewProductHandler(newTestQueue(t)))

	w := doJSON(t, mux, http.MethodPut, "/products", map[string]interface{}{
		"products": []map[string]interface{}{
			{"id": "reg-001", "name": "Cement 50kg", "category": "binder", "payload": map[string]interface{}{"strengthClass": "42.5"}},
			{"id": "reg-002", "name": "Rebar 12mm", "category": "steel", "payload": map[string]interface{}{"grade": "B500B"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PutProducts status = %d, body = %s", w.Code, w.Body.String())
	}

	var listResp struct {
		Total int `json:"total"`
	}

	w = doJSON(t, mux, http.MethodGet, "/products", nil)
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Total != 2 {
		t.Errorf("total = %d, want 2", listResp.Total)
	}

	w = doJSON(t, mux, http.MethodGet, "/products?category=steel", nil)
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Total != 1 {
		t.Errorf("steel total = %d, want 1", listResp.Total)
	}

	w = doJSON(t, mux, http.MethodGet, "/products/reg-001", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GetProduct status = %d", w.Code)
	}

	w = doJSON(t, mux, http.MethodGet, "/products/reg-999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GetProduct missing id status = %d, want 404", w.Code)
	}

	// Clear empties the cache
	w = doJSON(t, mux, http.MethodDelete, "/products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ClearProducts status = %d", w.Code)
	}
	w = doJSON(t, mux, http.MethodGet, "/products", nil)
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Total != 0 {
		t.Errorf("total after clear = %d, want 0", listResp.Total)
	}
}

func TestProductHandler_MissingIDRejected(t *testing.T) {
	mux := newProductMux(NewProductHandler(newTestQueue(t)))

	w := doJSON(t, mux, http.MethodPut, "/products", map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "No registry id"},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("PutProducts without id status = %d, want 400", w.Code)
	}
}
