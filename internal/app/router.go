package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	accesshttp "github.com/gunnchOS3k/arcade-core/internal/access/http"
	audithttp "github.com/gunnchOS3k/arcade-core/internal/audit/http"
	compliancehttp "github.com/gunnchOS3k/arcade-core/internal/compliance/http"
	"github.com/gunnchOS3k/arcade-core/internal/observability"
	"github.com/gunnchOS3k/arcade-core/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AccessHandler     *accesshttp.Handler
	AuditHandler      *audithttp.Handler
	ComplianceHandler *compliancehttp.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		if params.AccessHandler != nil {
			params.AccessHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.ComplianceHandler != nil {
			params.ComplianceHandler.MountRoutes(r)
		}
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
