package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/validation"
)

const maxJSONBody = 1 << 20

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", slog.Int("status", status), slog.Any("error", err))
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", slog.Int("status", status), slog.Any("response", payload))
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", slog.Int("status", status), slog.Any("response", payload))
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

// validationMessage flattens validator failures into one client message.
func validationMessage(err error) string {
	var verr *validation.Error
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		messages := make([]string, len(verr.Fields))
		for i, f := range verr.Fields {
			messages[i] = f.Message
		}
		return strings.Join(messages, ", ")
	}
	return "invalid request"
}
