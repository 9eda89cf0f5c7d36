package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/refill"
)

// RefillHandler exposes proactive refill predictions
type RefillHandler struct {
	patients  catalog.PatientStore
	predictor *refill.Predictor
	logger    *zap.Logger
}

// NewRefillHandler creates a new handler
func NewRefillHandler(patients catalog.PatientStore, predictor *refill.Predictor, logger *zap.Logger) *RefillHandler {
	return &RefillHandler{patients: patients, predictor: predictor, logger: logger}
}

// Routes returns the handler routes
func (h *RefillHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.All)
	r.Get("/{patientID}", h.ForPatient)
	return r
}

// All handles GET /refills: actionable alerts across every patient.
func (h *RefillHandler) All(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.predictor.ScanAll(r.Context(), h.patients)
	if err != nil {
		h.logger.Error("refill scan failed", zap.Error(err))
		jsonError(w, "failed to scan refills", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// ForPatient handles GET /refills/{patientID}
func (h *RefillHandler) ForPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	patient, err := h.patients.GetPatient(ctx, patientID)
	if err != nil {
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	}

	due, err := h.patients.GetMedicinesNeedingRefill(ctx, patientID, time.Now())
	if err != nil {
		h.logger.Error("refill lookup failed", zap.String("patient_id", patientID), zap.Error(err))
		jsonError(w, "failed to check refills", http.StatusInternalServerError)
		return
	}
	if len(due) == 0 {
		writeJSON(w, http.StatusOK, []refill.Prediction{})
		return
	}

	writeJSON(w, http.StatusOK, h.predictor.Predict(ctx, patient.Name, due))
}
