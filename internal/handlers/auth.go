package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
	"github.com/otogram/backend/internal/validation"
)

// compareHashAndPassword is swapped in tests.
var compareHashAndPassword = bcrypt.CompareHashAndPassword

// dummyPasswordHash is compared against when the email is unknown so both
// failure paths cost one bcrypt comparison.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("otogram-unknown-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

// AuthHandler implements account registration and login endpoints.
type AuthHandler struct {
	Users   UserStore
	Tokens  TokenService
	NowFunc func() time.Time
}

// Register handles POST /auth/register requests.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid register payload", slog.Any("error", err))
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		respondError(ctx, w, http.StatusConflict, "user with this email already exists")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register email lookup failed", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify existing accounts")
		return
	}

	if _, err := h.Users.FindByUsername(ctx, req.Username); err == nil {
		respondError(ctx, w, http.StatusConflict, "username is already taken")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register username lookup failed", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify existing accounts")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("register failed to hash password", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		Password:     string(hashed),
		Role:         models.RoleUser,
		ProfileImage: models.DefaultProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "user with this email or username already exists")
			return
		}
		logger.Error("register failed to create user", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		logger.Error("register failed to issue token", slog.Any("error", err), slog.String("user_id", user.ID))
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	logger.Info("user registered", slog.String("user_id", user.ID))
	respondJSON(ctx, w, http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles POST /auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid login payload", slog.Any("error", err))
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", slog.Any("error", err))
			respondError(ctx, w, http.StatusInternalServerError, "unable to sign in")
			return
		}
		_ = compareHashAndPassword(dummyPasswordHash(), []byte(req.Password))
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := compareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", slog.String("user_id", user.ID))
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		logger.Error("login failed to issue token", slog.Any("error", err), slog.String("user_id", user.ID))
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Token: token, User: user})
}

// Me handles GET /auth/me, returning the stored account behind the token.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "not authorized")
		return
	}

	user, err := h.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(ctx).Error("load current user", slog.Any("error", err))
		respondError(ctx, w, http.StatusInternalServerError, "unable to load user")
		return
	}

	respondJSON(ctx, w, http.StatusOK, user)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
