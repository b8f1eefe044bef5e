package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/roombridge/internal/api/handler"
	mw "github.com/kiranshivaraju/roombridge/internal/api/middleware"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth          *mw.Auth
	SignedRequest *mw.SignedRequest
	Session       *mw.Session
	Tracing       *mw.Tracing

	DescriptorHandler  http.HandlerFunc
	InstallHandler     http.HandlerFunc
	UninstallHandler   http.HandlerFunc
	ConfigureHandler   http.HandlerFunc
	RoomMessageHandler http.HandlerFunc

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
	EventHandler   http.HandlerFunc
	AlertHandler   http.HandlerFunc
	Plugin         *handler.PluginHandlers
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if deps.Tracing != nil {
		r.Use(deps.Tracing.Middleware)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Chat server callbacks
	r.Get(handler.DescriptorPath, orNotImplemented(deps.DescriptorHandler))
	r.Post(handler.InstallablePath, orNotImplemented(deps.InstallHandler))
	r.Delete(handler.InstallablePath+"/{oauthID}", orNotImplemented(deps.UninstallHandler))
	r.Group(func(r chi.Router) {
		r.Use(deps.SignedRequest.RoomContext)
		r.Use(deps.Session.Identify)

		r.Get(handler.ConfigurePath, orNotImplemented(deps.ConfigureHandler))
		r.Post(handler.ConfigurePath, orNotImplemented(deps.ConfigureHandler))
	})
	r.With(deps.SignedRequest.Webhook).
		Post(handler.RoomMessagePath, orNotImplemented(deps.RoomMessageHandler))

	// Public operational endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Host event hooks
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeEvents))

			r.Post("/api/v1/events", orNotImplemented(deps.EventHandler))
			r.Post("/api/v1/alerts", orNotImplemented(deps.AlertHandler))
		})

		if deps.Plugin == nil {
			return
		}
		r.Get("/api/v1/projects/{projectID}/plugin", deps.Plugin.Status)
		r.Get("/api/v1/projects/{projectID}/plugin/configure", deps.Plugin.Configure)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/projects/{projectID}/plugin/enable", deps.Plugin.Enable)
			r.Post("/api/v1/projects/{projectID}/plugin/disable", deps.Plugin.Disable)
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
