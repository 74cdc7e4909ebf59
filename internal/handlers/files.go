package handlers

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/media"
)

const streamBufferSize = 32 << 10

// FileHandler streams stored media back to clients.
type FileHandler struct {
	Media MediaStore
}

// Serve returns a handler for GET /files/{images|videos}/{fileId}. Blobs whose
// content type does not belong to kind are reported as missing.
func (h FileHandler) Serve(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fileID := chi.URLParam(r, "fileId")

		obj, err := h.Media.Open(ctx, fileID)
		if err != nil {
			if errors.Is(err, media.ErrFileNotFound) {
				respondError(ctx, w, http.StatusNotFound, "file not found")
				return
			}
			logging.FromContext(ctx).Error("open file", slog.String("file_id", fileID), slog.Any("error", err))
			respondError(ctx, w, http.StatusInternalServerError, "unable to read file")
			return
		}
		defer obj.Body.Close()

		if !strings.HasPrefix(obj.ContentType, kind.MIMEPrefix) {
			respondError(ctx, w, http.StatusNotFound, "file not found")
			return
		}

		body := bufio.NewReaderSize(obj.Body, streamBufferSize)
		if _, err := body.Peek(1); err != nil && !errors.Is(err, io.EOF) {
			logging.FromContext(ctx).Error("read file", slog.String("file_id", fileID), slog.Any("error", err))
			respondError(ctx, w, http.StatusInternalServerError, "unable to read file")
			return
		}

		w.Header().Set("Content-Type", obj.ContentType)
		if obj.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, body); err != nil {
			logging.FromContext(ctx).Error("stream file", slog.String("file_id", fileID), slog.Any("error", err))
			// Headers are sent; abort so the client sees a broken response.
			panic(http.ErrAbortHandler)
		}
	}
}
