package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
)

const bearerPrefix = "Bearer "

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// UserLookup loads the stored user behind an identity.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Authenticate rejects requests without a valid bearer token and attaches the
// token's identity to the request context. It never consults the user store.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				writeError(ctx, w, http.StatusUnauthorized, "not authorized, no token")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
			if token == "" {
				writeError(ctx, w, http.StatusUnauthorized, "not authorized, no token")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrSigningKeyUnavailable):
					logging.FromContext(ctx).Error("token verification unavailable", slog.Any("error", err))
					writeError(ctx, w, http.StatusInternalServerError, "internal server error")
				case errors.Is(err, auth.ErrTokenExpired):
					writeError(ctx, w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, auth.ErrTokenInvalid):
					writeError(ctx, w, http.StatusUnauthorized, "invalid token")
				default:
					writeError(ctx, w, http.StatusUnauthorized, "not authorized")
				}
				return
			}

			ctx = auth.WithIdentity(ctx, identity)
			ctx = logging.With(ctx, slog.String("user_id", identity.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole re-reads the caller's role from the store and admits only the
// listed roles. It must run after Authenticate.
func RequireRole(users UserLookup, roles ...models.Role) func(http.Handler) http.Handler {
	required := make([]string, len(roles))
	for i, role := range roles {
		required[i] = string(role)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, ok := auth.IdentityFrom(ctx)
			if !ok {
				writeError(ctx, w, http.StatusUnauthorized, "not authorized")
				return
			}

			user, err := users.FindByID(ctx, identity.UserID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					writeError(ctx, w, http.StatusNotFound, "user not found")
					return
				}
				logging.FromContext(ctx).Error("load user for role check", slog.Any("error", err))
				writeError(ctx, w, http.StatusInternalServerError, "internal server error")
				return
			}

			if !slices.Contains(roles, user.Role) {
				writeJSON(ctx, w, http.StatusForbidden, map[string]any{
					"error":         "insufficient role for this action",
					"requiredRoles": required,
					"currentRole":   string(user.Role),
				})
				return
			}

			ctx = auth.WithIdentity(ctx, auth.Identity{UserID: user.ID, Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
