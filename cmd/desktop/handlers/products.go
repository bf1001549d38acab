package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/queue"
)

// ProductHandler handles the local product catalog cache.
type ProductHandler struct {
	queue *queue.Queue
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(q *queue.Queue) *ProductHandler {
	return &ProductHandler{queue: q}
}

// ListProducts handles GET /products
// Optional ?category= filters the cached catalog.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	products, err := h.queue.ListCachedProducts(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"total":    len(products),
	})
}

// GetProduct handles GET /products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	product, err := h.queue.GetCachedProduct(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// PutProducts handles PUT /products
// Replaces or inserts catalog entries fetched from the registry while online.
func (h *ProductHandler) PutProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Products []*models.Product `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for _, product := range request.Products {
		if err := h.queue.CacheProduct(product); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"cached": len(request.Products),
	})
}

// ClearProducts handles DELETE /products
func (h *ProductHandler) ClearProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.queue.ClearProductCache(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}
