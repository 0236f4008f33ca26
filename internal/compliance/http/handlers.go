// Package compliancehttp exposes the compliance assessment and reporting
// endpoints.
package compliancehttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gunnchOS3k/arcade-core/internal/compliance"
	"github.com/gunnchOS3k/arcade-core/internal/platform/httpx"
)

// Handler serves the compliance endpoints. Reports go through the Redis
// cache; any mutation invalidates it.
type Handler struct {
	logger    *slog.Logger
	engine    *compliance.Engine
	cache     *compliance.ReportCache
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *compliance.Engine, cache *compliance.ReportCache) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		engine:    engine,
		cache:     cache,
		validator: validator.New(),
	}
}

func (h *Handler) handleListFrameworks(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"frameworks": h.engine.FrameworkNames()})
}

func (h *Handler) handleGetFramework(w http.ResponseWriter, r *http.Request) {
	fw, err := h.engine.Framework(chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "get framework", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fw)
}

func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	fw, err := h.engine.Assess(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "assess framework", err)
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Warn("report cache invalidate", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, fw)
}

type recordEvidenceRequest struct {
	RequirementID string   `json:"requirement_id" validate:"required"`
	Evidence      []string `json:"evidence" validate:"required,min=1"`
}

func (h *Handler) handleRecordEvidence(w http.ResponseWriter, r *http.Request) {
	var req recordEvidenceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.engine.RecordEvidence(name, req.RequirementID, req.Evidence...); err != nil {
		h.respondError(w, "record evidence", err)
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Warn("report cache invalidate", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.cache.Fetch(r.Context(), h.engine.BuildReport)
	if err != nil {
		h.respondError(w, "build report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportEvidence(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.engine.ExportEvidence(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "export evidence", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bundle)
}

func (h *Handler) handleGetRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	policy, ok := h.engine.RetentionPolicyFor(category)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no retention policy for data category")
		return
	}
	httpx.JSON(w, http.StatusOK, policy)
}

func (h *Handler) handleScheduleDeletion(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	scheduled, err := h.engine.ScheduleDeletion(r.Context(), category)
	if err != nil {
		h.respondError(w, "schedule deletion", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"data_category": category, "scheduled": scheduled})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, compliance.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, compliance.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
