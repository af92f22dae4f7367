package approvals

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/platform/httpx"
	"github.com/expensio/expensio/internal/shared"
)

// RulesHandler manages the admin rule-configuration endpoints.
type RulesHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewRulesHandler builds a RulesHandler instance.
func NewRulesHandler(logger *slog.Logger, service *Service) *RulesHandler {
	return &RulesHandler{logger: logger, service: service}
}

// MountRoutes registers rule routes.
func (h *RulesHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
	r.Put("/{id}/approvers", h.replaceApprovers)
}

func (h *RulesHandler) admin(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok || principal.Role != shared.RoleAdmin {
		httpx.RespondError(w, httpx.ErrForbidden)
		return shared.Principal{}, false
	}
	return principal, true
}

func (h *RulesHandler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	rules, err := h.service.ListRules(r.Context(), principal.CompanyID)
	if err != nil {
		h.logger.Error("list rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *RulesHandler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	detail, err := h.service.GetRule(r.Context(), principal.CompanyID, id)
	if err != nil {
		h.respondError(w, "get rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *RulesHandler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.admin(w, r)
	if !ok {
		return
	}
	var in RuleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	detail, err := h.service.CreateRule(r.Context(), principal.CompanyID, in)
	if err != nil {
		h.respondError(w, "create rule", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, detail)
}

func (h *RulesHandler) update(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.admin(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var in RuleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), principal.CompanyID, id, in)
	if err != nil {
		h.respondError(w, "update rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *RulesHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.admin(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.DeactivateRule(r.Context(), principal.CompanyID, id); err != nil {
		h.respondError(w, "deactivate rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

type approversPayload struct {
	Approvers []ApproverInput `json:"approvers"`
}

func (h *RulesHandler) replaceApprovers(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.admin(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var payload approversPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	assignments, err := h.service.ReplaceApprovers(r.Context(), principal.CompanyID, id, payload.Approvers)
	if err != nil {
		h.respondError(w, "replace approvers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvers": assignments})
}

func (h *RulesHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
