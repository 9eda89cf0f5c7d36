package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/domain/order"
)

// OrderHandler handles order listing, inspection, and lifecycle endpoints
type OrderHandler struct {
	repo   order.Repository
	logger *zap.Logger
}

// NewOrderHandler creates a new handler
func NewOrderHandler(repo order.Repository, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *OrderHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/events", h.GetEvents)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

type orderSummary struct {
	OrderID     string         `json:"order_id"`
	PatientID   string         `json:"patient_id"`
	PatientName string         `json:"patient_name"`
	Status      order.Status   `json:"status"`
	TotalAmount float64        `json:"total_amount"`
	Items       []order.Item   `json:"items"`
	Events      []*order.Event `json:"events,omitempty"`
}

func summarize(agg *order.Aggregate, withEvents bool) orderSummary {
	s := orderSummary{
		OrderID:     agg.ID(),
		PatientID:   agg.PatientID(),
		PatientName: agg.PatientName(),
		Status:      agg.Status(),
		TotalAmount: agg.TotalAmount(),
		Items:       agg.Items(),
	}
	if withEvents {
		s.Events = agg.Log()
	}
	return s
}

// List handles GET /orders, optionally filtered by patient_id, with each
// order's event timeline attached.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := r.URL.Query().Get("patient_id")

	ids, err := h.repo.ListIDs(ctx)
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err))
		jsonError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	out := make([]orderSummary, 0, len(ids))
	for _, id := range ids {
		agg, err := h.repo.Load(ctx, id)
		if err != nil {
			h.logger.Error("load order failed", zap.String("id", id), zap.Error(err))
			continue
		}
		if patientID != "" && agg.PatientID() != patientID {
			continue
		}
		out = append(out, summarize(agg, true))
	}

	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	agg, err := h.repo.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summarize(agg, false))
}

// GetEvents handles GET /orders/{id}/events
func (h *OrderHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.GetEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		jsonError(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Confirm handles POST /orders/{id}/confirm. Orders placed through chat are
// already PROCESSING; this endpoint advances warehouse-side progress for
// demo dashboards.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	agg, err := h.repo.Load(ctx, id)
	if err != nil {
		jsonError(w, "order not found", http.StatusNotFound)
		return
	}

	if err := agg.MarkPreparing("Preparing order"); err != nil {
		h.transitionError(w, err)
		return
	}
	if err := agg.MarkShipped("Order dispatched from warehouse"); err != nil {
		h.transitionError(w, err)
		return
	}
	if err := h.repo.Save(ctx, agg); err != nil {
		h.logger.Error("save order failed", zap.String("id", id), zap.Error(err))
		jsonError(w, "failed to save order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed", "order_id": id})
}

// Cancel handles POST /orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	agg, err := h.repo.Load(ctx, id)
	if err != nil {
		jsonError(w, "order not found", http.StatusNotFound)
		return
	}

	if err := agg.Cancel("Order cancelled by user"); err != nil {
		h.transitionError(w, err)
		return
	}
	if err := h.repo.Save(ctx, agg); err != nil {
		h.logger.Error("save order failed", zap.String("id", id), zap.Error(err))
		jsonError(w, "failed to save order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "order_id": id})
}

func (h *OrderHandler) transitionError(w http.ResponseWriter, err error) {
	var invalid *order.InvalidTransitionError
	if errors.As(err, &invalid) {
		jsonError(w, invalid.Error(), http.StatusBadRequest)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}

// WarehouseWebhook handles POST /webhook/warehouse: the warehouse
// acknowledges receipt and the order advances to PROCESSING if it is not
// there already.
func (h *OrderHandler) WarehouseWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OrderID == "" {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agg, err := h.repo.Load(ctx, payload.OrderID)
	if err != nil {
		jsonError(w, "order not found", http.StatusNotFound)
		return
	}

	if agg.Status() == order.StatusConfirmed {
		if err := agg.StartProcessing("Order received by warehouse, processing for shipment"); err != nil {
			h.transitionError(w, err)
			return
		}
		if err := h.repo.Save(ctx, agg); err != nil {
			jsonError(w, "failed to save order", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received", "order_id": payload.OrderID})
}
