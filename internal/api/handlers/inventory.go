package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
)

// InventoryHandler exposes the medicine catalog
type InventoryHandler struct {
	store  *catalog.MemoryStore
	logger *zap.Logger
}

// NewInventoryHandler creates a new handler
func NewInventoryHandler(store *catalog.MemoryStore, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{store: store, logger: logger}
}

// Routes returns the handler routes
func (h *InventoryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/search", h.Search)
	r.Get("/{id}", h.Get)
	return r
}

// List handles GET /inventory
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// Search handles GET /inventory/search?q=
func (h *InventoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		jsonError(w, "query parameter q is required", http.StatusBadRequest)
		return
	}
	matches, err := h.store.Search(r.Context(), q)
	if err != nil {
		h.logger.Error("inventory search failed", zap.Error(err))
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// Get handles GET /inventory/{id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	med, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "medicine not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, med)
}
