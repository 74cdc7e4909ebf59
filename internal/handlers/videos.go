package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/feed"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/media"
)

// uploadOverhead covers form fields and multipart framing around the files.
const uploadOverhead = 1 << 20

var videoUploadKinds = map[string]media.Kind{
	"video":     media.Video,
	"thumbnail": media.Image,
}

// VideoHandler serves the feed and content endpoints.
type VideoHandler struct {
	Feed  FeedService
	Media MediaStore
}

// List handles GET /videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.Feed.ListFeed(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list feed", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to load videos")
		return
	}

	respondJSON(ctx, w, http.StatusOK, entries)
}

// Get handles GET /videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entry, err := h.Feed.GetEntry(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondFeedError(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, entry)
}

// Upload handles POST /videos/upload with a multipart "video" file, an
// optional "thumbnail" image and a "description" field.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "")
}

// Reply handles POST /videos/{id}/reply. The parent is checked before any
// file is stored.
func (h VideoHandler) Reply(w http.ResponseWriter, r *http.Request) {
	parentID := chi.URLParam(r, "id")
	if _, err := h.Feed.ReplyTarget(r.Context(), parentID); err != nil {
		h.respondFeedError(w, r, err)
		return
	}
	h.create(w, r, parentID)
}

func (h VideoHandler) create(w http.ResponseWriter, r *http.Request, parentID string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.Video.MaxBytes+media.Image.MaxBytes+uploadOverhead)
	upload, err := h.Media.Receive(r, videoUploadKinds)
	if err != nil {
		respondUploadError(w, r, err)
		return
	}

	videoFile, ok := upload.File("video")
	if !ok {
		h.Media.Discard(ctx, upload)
		respondError(ctx, w, http.StatusBadRequest, "no video file uploaded")
		return
	}

	in := feed.NewVideo{
		OwnerID:     identity.UserID,
		Video:       videoFile,
		Description: upload.Fields["description"],
		ParentID:    parentID,
	}
	if thumb, ok := upload.File("thumbnail"); ok {
		in.Thumbnail = &thumb
	}

	entry, err := h.Feed.CreateVideo(ctx, in)
	if err != nil {
		h.Media.Discard(ctx, upload)
		h.respondFeedError(w, r, err)
		return
	}

	logger.Info("video uploaded", slog.String("video_id", entry.ID), slog.Int64("size", videoFile.Size))
	respondJSON(ctx, w, http.StatusCreated, entry)
}

// Delete handles DELETE /videos/{id}. The identity's role has been refreshed
// from the store by the role gate.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	if err := h.Feed.DeleteContent(ctx, chi.URLParam(r, "id"), identity); err != nil {
		h.respondFeedError(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "video deleted"})
}

// Like handles POST /videos/{id}/like.
func (h VideoHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	result, err := h.Feed.ToggleLike(ctx, chi.URLParam(r, "id"), identity.UserID)
	if err != nil {
		h.respondFeedError(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, result)
}

// View handles POST /videos/{id}/view.
func (h VideoHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.Feed.RecordView(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondFeedError(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]int64{"views": views})
}

func (h VideoHandler) respondFeedError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, feed.ErrVideoNotFound):
		respondError(ctx, w, http.StatusNotFound, "video not found")
	case errors.Is(err, feed.ErrUserNotFound):
		respondError(ctx, w, http.StatusNotFound, "user not found")
	case errors.Is(err, feed.ErrForbidden):
		respondError(ctx, w, http.StatusForbidden, "not authorized to delete this video")
	case errors.Is(err, feed.ErrParentIsReply),
		errors.Is(err, feed.ErrDescriptionTooLong),
		errors.Is(err, feed.ErrMissingVideoFile):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(ctx).Error("video request failed", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}

func respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, media.ErrPayloadTooLarge):
		respondError(ctx, w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &tooBig):
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.Is(err, media.ErrUnsupportedMediaType):
		respondError(ctx, w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, media.ErrNotMultipart), errors.Is(err, media.ErrMalformedUpload):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(ctx).Error("store upload", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "failed to store upload")
	}
}
