package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/tally/internal/documents"
	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/observability"
	"github.com/odyssey-erp/tally/internal/shared"
	"github.com/odyssey-erp/tally/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	FiscalHandler   *fiscal.Handler
	DocumentService *documents.Service
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with the default middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.SessionManager != nil {
		r.Route("/session", NewSessionHandler(params.Logger, params.SessionManager).MountRoutes)
	}
	if params.FiscalHandler != nil {
		r.Route("/fiscal-config", params.FiscalHandler.MountRoutes)
	}
	if params.DocumentService != nil {
		locale := "en"
		if params.Config != nil && params.Config.DefaultLocale != "" {
			locale = params.Config.DefaultLocale
		}
		for _, kind := range documents.Kinds {
			h := documents.NewHandler(params.Logger, params.DocumentService, kind, locale)
			r.Route(kind.Path(), h.MountRoutes)
		}
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
