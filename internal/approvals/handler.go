package approvals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/platform/httpx"
	"github.com/expensio/expensio/internal/shared"
)

// Handler manages the approver-facing endpoints: the pending queue, action
// history and the approve/reject actions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pending", h.pending)
	r.Get("/history", h.history)
	r.Get("/{logID}", h.get)
	r.Post("/{logID}/approve", h.approve)
	r.Post("/{logID}/reject", h.reject)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	page, perPage := pageParams(r)
	items, pagination, err := h.service.Pending(r.Context(), principal.UserID, page, perPage)
	if err != nil {
		h.logger.Error("pending approvals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": items, "pagination": pagination})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	page, perPage := pageParams(r)
	logs, pagination, err := h.service.ApproverHistory(r.Context(), principal.UserID, page, perPage)
	if err != nil {
		h.logger.Error("approval history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": logs, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	log, err := h.service.GetLog(r.Context(), id)
	if err != nil || log.ApproverID != principal.UserID {
		h.respondError(w, "get approval log", firstErr(err, ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, log)
}

type actionPayload struct {
	Comments string `json:"comments"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, DecisionApprove)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, DecisionReject)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, decision Decision) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var payload actionPayload
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	}
	result, err := h.service.Act(r.Context(), principal, id, decision, payload.Comments)
	if err != nil {
		h.respondError(w, "act on approval log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrAlreadyProcessed):
		httpx.Problem(w, http.StatusConflict, "Conflict", "approval log already processed")
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}
