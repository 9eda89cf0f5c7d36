package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/api/middleware"
	"github.com/pharmaops/go-rxchat/internal/orchestrator"
)

// ChatHandler handles the conversational endpoint
type ChatHandler struct {
	engine *orchestrator.Engine
	logger *zap.Logger
}

// NewChatHandler creates a new handler
func NewChatHandler(engine *orchestrator.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// Routes returns the handler routes
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Chat)
	return r
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("chat-handler")
	ctx, span := tracer.Start(ctx, "chat_turn")
	defer span.End()

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" || req.Message == "" {
		jsonError(w, "patient_id and message are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = middleware.GetSessionID(ctx)
	}
	span.SetAttributes(
		attribute.String("patient_id", req.PatientID),
		attribute.String("session_id", req.Session()),
	)

	resp, err := h.engine.HandleMessage(ctx, req)
	if err != nil {
		h.logger.Error("chat turn failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)),
		)
		jsonError(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
