// Package audithttp exposes the audit trail and agent approval endpoints.
package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gunnchOS3k/arcade-core/internal/audit"
	"github.com/gunnchOS3k/arcade-core/internal/platform/httpx"
)

// Service is the audit trail contract the handler depends on.
type Service interface {
	QueryEvents(ctx context.Context, filter audit.EventFilter) ([]audit.Event, error)
	QueryIncidents(ctx context.Context, filter audit.IncidentFilter) ([]audit.Incident, error)
	PendingAgentActions(ctx context.Context) ([]audit.AgentAction, error)
	SubmitAgentAction(ctx context.Context, principalID, action string, meta map[string]any) (string, error)
	ApproveAgentAction(ctx context.Context, id, approverID string) error
	RejectAgentAction(ctx context.Context, id, approverID string) error
}

// Handler serves the audit endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter := audit.EventFilter{
		PrincipalID: r.URL.Query().Get("principal_id"),
		Limit:       queryLimit(r),
	}
	from, err := queryTime(r, "from")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC 3339")
		return
	}
	filter.From = from
	to, err := queryTime(r, "to")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC 3339")
		return
	}
	filter.To = to
	events, err := h.service.QueryEvents(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list events", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := audit.IncidentFilter{
		Severity: audit.Severity(r.URL.Query().Get("severity")),
		Category: audit.IncidentCategory(r.URL.Query().Get("category")),
		Limit:    queryLimit(r),
	}
	incidents, err := h.service.QueryIncidents(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list incidents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (h *Handler) handlePendingAgentActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.PendingAgentActions(r.Context())
	if err != nil {
		h.respondError(w, "pending agent actions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

type submitActionRequest struct {
	PrincipalID string         `json:"principal_id" validate:"required"`
	Action      string         `json:"action" validate:"required"`
	Meta        map[string]any `json:"meta"`
}

func (h *Handler) handleSubmitAgentAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.SubmitAgentAction(r.Context(), req.PrincipalID, req.Action, req.Meta)
	if err != nil {
		h.respondError(w, "submit agent action", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

type decideActionRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
}

func (h *Handler) handleApproveAgentAction(w http.ResponseWriter, r *http.Request) {
	h.decideAgentAction(w, r, h.service.ApproveAgentAction, "approve agent action")
}

func (h *Handler) handleRejectAgentAction(w http.ResponseWriter, r *http.Request) {
	h.decideAgentAction(w, r, h.service.RejectAgentAction, "reject agent action")
}

func (h *Handler) decideAgentAction(w http.ResponseWriter, r *http.Request, decide func(context.Context, string, string) error, op string) {
	id := chi.URLParam(r, "id")
	var req decideActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := decide(r.Context(), id, req.ApproverID); err != nil {
		h.respondError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, audit.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, audit.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, audit.ErrAlreadyDecided):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
