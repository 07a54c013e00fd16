package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	statusOK    = "ok"
	statusReady = "ready"
)

// Handler serves the liveness and readiness probes.
type Handler struct {
	logger *zap.Logger
}

// NewHandler constructs a Handler that reports readiness checks to logger.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: statusOK})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("ready check", zap.String("request_id", requestIDFromContext(r.Context())))
	writeJSON(w, http.StatusOK, statusResponse{Status: statusReady})
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}
