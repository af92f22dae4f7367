package expenses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/fx"
	"github.com/expensio/expensio/internal/platform/httpx"
	"github.com/expensio/expensio/internal/shared"
)

// Handler manages expense endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/submit", h.submit)
	r.Get("/{id}/logs", h.logs)
}

type expensePayload struct {
	CategoryID  string  `json:"category_id" validate:"required,uuid"`
	Description string  `json:"description" validate:"required,max=500"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required,len=3,uppercase"`
	ExpenseDate string  `json:"expense_date" validate:"required,datetime=2006-01-02"`
	ReceiptURL  string  `json:"receipt_url" validate:"omitempty,url"`
}

func (h *Handler) decodeInput(r *http.Request) (Input, error) {
	var payload expensePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		return Input{}, ErrValidation
	}
	if err := h.validate.Struct(payload); err != nil {
		return Input{}, ErrValidation
	}
	categoryID, err := uuid.Parse(payload.CategoryID)
	if err != nil {
		return Input{}, ErrValidation
	}
	expenseDate, err := time.Parse("2006-01-02", payload.ExpenseDate)
	if err != nil {
		return Input{}, ErrValidation
	}
	return Input{
		CategoryID:  categoryID,
		Description: payload.Description,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		ExpenseDate: expenseDate,
		ReceiptURL:  payload.ReceiptURL,
	}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	in, err := h.decodeInput(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	expense, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.respondError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
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
	expense, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, expense)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
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
	in, err := h.decodeInput(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	expense, err := h.service.Update(r.Context(), principal, id, in)
	if err != nil {
		h.respondError(w, "update expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, expense)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		h.respondError(w, "delete expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
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
	expense, err := h.service.Submit(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, "submit expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, expense)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	f, companyWide, err := listParams(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	list, pagination, err := h.service.List(r.Context(), principal, f, companyWide)
	if err != nil {
		h.respondError(w, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": list, "pagination": pagination})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	companyWide, _ := strconv.ParseBool(r.URL.Query().Get("company"))
	stats, err := h.service.GetStats(r.Context(), principal, companyWide)
	if err != nil {
		h.respondError(w, "expense stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
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
	logs, err := h.service.History(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, "expense approval logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func listParams(r *http.Request) (ListFilter, bool, error) {
	q := r.URL.Query()
	var f ListFilter
	if s := q.Get("status"); s != "" {
		status := ExpenseStatus(s)
		if !status.Valid() {
			return ListFilter{}, false, ErrValidation
		}
		f.Status = status
	}
	if c := q.Get("category_id"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			return ListFilter{}, false, ErrValidation
		}
		f.CategoryID = &id
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	companyWide, _ := strconv.ParseBool(q.Get("company"))
	return f, companyWide, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, fx.ErrUnsupportedCurrency):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, fx.ErrConversion):
		httpx.Problem(w, http.StatusBadGateway, "Upstream Failure", "currency conversion unavailable")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
