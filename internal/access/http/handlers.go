// Package accesshttp exposes the authorization and principal management
// endpoints consumed by the bot/command layer.
package accesshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gunnchOS3k/arcade-core/internal/access"
	"github.com/gunnchOS3k/arcade-core/internal/observability"
	"github.com/gunnchOS3k/arcade-core/internal/platform/httpx"
)

// Service is the access control contract the handler depends on.
type Service interface {
	Authorize(ctx context.Context, principalID, resource, action string, reqCtx access.RequestContext) (access.Decision, error)
	CreateUser(ctx context.Context, actorID string, user access.User) error
	UpdateUserRole(ctx context.Context, actorID, targetID string, role access.Role) error
	DeactivateUser(ctx context.Context, actorID, targetID string) error
	SecurityScore(ctx context.Context) (int, error)
}

// Handler serves the access control endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

type authorizeRequest struct {
	PrincipalID string `json:"principal_id"`
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	decision, err := h.service.Authorize(r.Context(), req.PrincipalID, req.Resource, req.Action, access.RequestContext{
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.respondError(w, "authorize", err)
		return
	}
	h.metrics.ObserveDecision(decisionOutcome(decision))
	httpx.JSON(w, http.StatusOK, decision)
}

func decisionOutcome(d access.Decision) string {
	switch {
	case d.Allowed:
		return "allowed"
	case d.PendingActionID != "":
		return "pending_approval"
	default:
		return "denied"
	}
}

type createUserRequest struct {
	ActorID    string `json:"actor_id" validate:"required"`
	ID         string `json:"id" validate:"required"`
	Role       string `json:"role" validate:"required"`
	MFAEnabled bool   `json:"mfa_enabled"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.CreateUser(r.Context(), req.ActorID, access.User{
		ID:         req.ID,
		Role:       access.Role(req.Role),
		MFAEnabled: req.MFAEnabled,
	})
	if err != nil {
		h.respondError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type updateRoleRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Role    string `json:"role" validate:"required"`
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateUserRole(r.Context(), req.ActorID, targetID, access.Role(req.Role)); err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"id": targetID, "role": req.Role})
}

type deactivateRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	var req deactivateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.DeactivateUser(r.Context(), req.ActorID, targetID); err != nil {
		h.respondError(w, "deactivate user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSecurityScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.service.SecurityScore(r.Context())
	if err != nil {
		h.respondError(w, "security score", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"score": score})
}

// respondError maps domain errors onto problem responses. Infrastructure
// failures are logged with context but surfaced generically.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, access.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, access.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, access.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
