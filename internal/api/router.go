package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/merkelview/merkel-server/internal/geo"
	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/metrics"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Auth       *service.Auth
	Flows      *service.Flow
	Locations  *service.Location
	Feed       *service.Feed
	MapAdapter *geo.MapAdapter

	ContextManager model.ContextManager
	Registry       *prometheus.Registry
	AuthRateLimit  *RateLimiter
	Logger         *logger.Logger
}

// NewRouter builds the full route tree. The wizard and token endpoints sit
// behind the auth rate limiter; everything under /api except the wizard,
// token exchange and map view requires a bearer token.
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(deps.Logger))

	flowHandler := NewFlowHandler(deps.Flows)
	authHandler := NewAuthHandler(deps.Auth, deps.ContextManager)
	locationHandler := NewLocationHandler(deps.Locations, deps.ContextManager)
	mapHandler := NewMapHandler(deps.MapAdapter, deps.Auth, deps.ContextManager)
	streamHandler := NewStreamHandler(deps.Feed, deps.MapAdapter, deps.Logger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))
	}

	// Credential endpoints, throttled per client IP.
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthRateLimit.Middleware())

		r.Route("/api/flow", func(r chi.Router) {
			r.Post("/", flowHandler.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", flowHandler.State)
				r.Delete("/", flowHandler.End)
				r.Post("/email", flowHandler.SubmitEmail)
				r.Post("/password", flowHandler.SubmitPassword)
				r.Post("/back", flowHandler.Back)
				r.Post("/forgot-password", flowHandler.ForgotPassword)
				r.Post("/show-register", flowHandler.ShowRegister)
				r.Post("/register", flowHandler.Register)
				r.Post("/reset", flowHandler.Reset)
				r.Post("/resend-verification", flowHandler.ResendVerification)
				r.Post("/check-verification", flowHandler.CheckVerification)
				r.Post("/sign-out", flowHandler.SignOut)
			})
		})

		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/verify-email", authHandler.VerifyEmail)
			r.Post("/reset-password", authHandler.ResetPassword)
		})
	})

	// Read-only map state is available without a session.
	r.Get("/api/map/view", mapHandler.View)
	r.Get("/api/map/markers", mapHandler.Markers)
	r.Post("/api/map/search", mapHandler.Search)

	// Everything else requires a bearer token.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Auth.Tokens(), deps.ContextManager))

		r.Get("/api/auth/session", authHandler.Session)

		r.Route("/api/locations", func(r chi.Router) {
			r.Get("/", locationHandler.List)
			r.Post("/", locationHandler.Create)
			r.Get("/categories", locationHandler.Categories)
			r.Get("/stream", streamHandler.Stream)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", locationHandler.Get)
				r.Put("/", locationHandler.Update)
				r.Delete("/", locationHandler.Delete)
			})
		})

		r.Post("/api/map/click", mapHandler.Click)
		r.Post("/api/map/pending/clear", mapHandler.ClearPending)
	})

	return r
}
