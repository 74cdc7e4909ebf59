package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/middleware"
	"github.com/otogram/backend/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users  UserStore
	Tokens TokenService
	Feed   FeedService
	Media  MediaStore
	Health HealthChecker

	Logger            *slog.Logger
	AllowedOrigins    []string
	StaticDir         string
	RequestsPerMinute int
	AuthLimiter       middleware.RateLimiter
	TrustedProxies    middleware.TrustedProxies
}

// NewRouter wires HTTP handlers and middleware into a chi router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{Checker: deps.Health}
	authH := AuthHandler{Users: deps.Users, Tokens: deps.Tokens}
	videos := VideoHandler{Feed: deps.Feed, Media: deps.Media}
	users := UserHandler{Users: deps.Users, Feed: deps.Feed, Media: deps.Media}
	files := FileHandler{Media: deps.Media}

	authenticate := middleware.Authenticate(deps.Tokens)
	anyRole := middleware.RequireRole(deps.Users, models.Roles...)
	creators := middleware.RequireRole(deps.Users, models.RoleCreator, models.RoleAdmin)
	admins := middleware.RequireRole(deps.Users, models.RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(
			deps.RequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return deps.TrustedProxies.ClientIP(r), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				respondError(r.Context(), w, http.StatusTooManyRequests, "too many requests, try again later")
			}),
		))
	}

	r.Get("/healthz", health.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.Limit(deps.AuthLimiter, "register", deps.TrustedProxies)).Post("/register", authH.Register)
		r.With(middleware.Limit(deps.AuthLimiter, "login", deps.TrustedProxies)).Post("/login", authH.Login)
		r.With(authenticate).Get("/me", authH.Me)
	})

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", videos.List)
		r.Get("/{id}", videos.Get)
		r.Post("/{id}/view", videos.View)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/like", videos.Like)
			r.With(anyRole).Delete("/{id}", videos.Delete)
			r.With(creators).Post("/upload", videos.Upload)
			r.With(creators).Post("/{id}/reply", videos.Reply)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/profile/{username}", users.Profile)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me/liked", users.Liked)
			r.Post("/me/update-profile-image", users.UpdateProfileImage)
			r.With(admins).Get("/", users.List)
			r.With(admins).Patch("/role/{userId}", users.UpdateRole)
		})
	})

	r.Get("/files/images/{fileId}", files.Serve(media.Image))
	r.Get("/files/videos/{fileId}", files.Serve(media.Video))

	if deps.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
