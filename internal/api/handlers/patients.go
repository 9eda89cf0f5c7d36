package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
)

// PatientHandler exposes patient records and history
type PatientHandler struct {
	patients catalog.PatientStore
	logger   *zap.Logger
}

// NewPatientHandler creates a new handler
func NewPatientHandler(patients catalog.PatientStore, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, logger: logger}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	return r
}

// List handles GET /patients
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patients.ListPatients(r.Context())
	if err != nil {
		h.logger.Error("list patients failed", zap.Error(err))
		jsonError(w, "failed to list patients", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// Get handles GET /patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	patient, err := h.patients.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// History handles GET /patients/{id}/history
func (h *PatientHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.patients.GetOrderHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("order history failed", zap.Error(err))
		jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
