package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes attaches the audit endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(queryLimiter()).Get("/events", h.handleListEvents)
		r.With(queryLimiter()).Get("/incidents", h.handleListIncidents)
		r.Get("/agent-actions/pending", h.handlePendingAgentActions)
		r.Post("/agent-actions", h.handleSubmitAgentAction)
		r.Post("/agent-actions/{id}/approve", h.handleApproveAgentAction)
		r.Post("/agent-actions/{id}/reject", h.handleRejectAgentAction)
	})
}

// queryLimiter keeps trail queries from dominating the database.
func queryLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		60,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
