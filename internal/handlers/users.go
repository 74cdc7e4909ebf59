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
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
	"github.com/otogram/backend/internal/validation"
)

// UserHandler serves profile and account administration endpoints.
type UserHandler struct {
	Users UserStore
	Feed  FeedService
	Media MediaStore
}

// Profile handles GET /users/profile/{username}.
func (h UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := h.Feed.GetProfile(ctx, chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, feed.ErrUserNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(ctx).Error("load profile", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to load profile")
		return
	}

	respondJSON(ctx, w, http.StatusOK, profile)
}

// Liked handles GET /users/me/liked.
func (h UserHandler) Liked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	entries, err := h.Feed.ListLiked(ctx, identity.UserID)
	if err != nil {
		logging.FromContext(ctx).Error("list liked videos", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to load liked videos")
		return
	}

	respondJSON(ctx, w, http.StatusOK, entries)
}

// UpdateProfileImage handles POST /users/me/update-profile-image with a
// multipart "profileImage" file. The previous image is removed best effort.
func (h UserHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.Image.MaxBytes+uploadOverhead)
	upload, err := h.Media.Receive(r, map[string]media.Kind{"profileImage": media.Image})
	if err != nil {
		respondUploadError(w, r, err)
		return
	}

	image, ok := upload.File("profileImage")
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "no image uploaded")
		return
	}

	current, err := h.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		h.Media.Discard(ctx, upload)
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("load user for profile image", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to update profile image")
		return
	}

	updated, err := h.Users.UpdateProfileImage(ctx, identity.UserID, image.URL, image.FileID)
	if err != nil {
		h.Media.Discard(ctx, upload)
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("update profile image", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to update profile image")
		return
	}

	if current.ProfileImageFileID != "" && current.ProfileImageFileID != image.FileID {
		h.Media.Remove(ctx, current.ProfileImageFileID)
	}

	respondJSON(ctx, w, http.StatusOK, updated)
}

// List handles GET /users.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.Users.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list users", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to list users")
		return
	}
	if users == nil {
		users = []models.User{}
	}

	respondJSON(ctx, w, http.StatusOK, users)
}

// UpdateRole handles PATCH /users/role/{userId}. Admins cannot change their own role.
func (h UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, validationMessage(err))
		return
	}

	targetID := chi.URLParam(r, "userId")
	if targetID == identity.UserID {
		respondError(ctx, w, http.StatusBadRequest, "you cannot change your own role")
		return
	}

	updated, err := h.Users.UpdateRole(ctx, targetID, models.Role(req.Role))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("update role", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to update role")
		return
	}

	logger.Info("user role changed",
		slog.String("target_user_id", updated.ID),
		slog.String("role", string(updated.Role)),
	)
	respondJSON(ctx, w, http.StatusOK, updated)
}

type roleRequest struct {
	Role string `json:"role" validate:"required,role"`
}
