package compliancehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes attaches the compliance endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Get("/frameworks", h.handleListFrameworks)
		r.Get("/frameworks/{name}", h.handleGetFramework)
		r.With(assessLimiter()).Post("/frameworks/{name}/assess", h.handleAssess)
		r.Post("/frameworks/{name}/evidence", h.handleRecordEvidence)
		r.Get("/frameworks/{name}/evidence/export", h.handleExportEvidence)
		r.Get("/report", h.handleReport)
		r.Get("/retention/{category}", h.handleGetRetentionPolicy)
		r.Post("/retention/{category}/schedule-deletion", h.handleScheduleDeletion)
	})
}

// assessLimiter keeps repeated assessments from flooding the audit trail.
func assessLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		10,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
