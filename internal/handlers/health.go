package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/otogram/backend/internal/logging"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	Checker HealthChecker
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Checker != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.Checker.Ping(pingCtx); err != nil {
			logging.FromContext(ctx).Error("health check failed", slog.Any("error", err))
			respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
