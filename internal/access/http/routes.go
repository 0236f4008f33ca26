package accesshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes attaches the access control endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/access", func(r chi.Router) {
		r.With(authorizeLimiter()).Post("/authorize", h.handleAuthorize)
		r.Post("/users", h.handleCreateUser)
		r.Post("/users/{id}/role", h.handleUpdateRole)
		r.Post("/users/{id}/deactivate", h.handleDeactivate)
		r.Get("/security/score", h.handleSecurityScore)
	})
}

// authorizeLimiter bounds per-client decision traffic. Authorization is on
// the hot path for every bot command, so the window is generous.
func authorizeLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		300,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
