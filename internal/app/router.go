package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/expensio/expensio/internal/approvals"
	"github.com/expensio/expensio/internal/categories"
	"github.com/expensio/expensio/internal/companies"
	"github.com/expensio/expensio/internal/expenses"
	"github.com/expensio/expensio/internal/users"
	"github.com/expensio/expensio/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	ExpenseHandler  *expenses.Handler
	ApprovalHandler *approvals.Handler
	RulesHandler    *approvals.RulesHandler
	CategoryHandler *categories.Handler
	CompanyHandler  *companies.Handler
	UserHandler     *users.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Expensio defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/expenses", params.ExpenseHandler.MountRoutes)
	r.Route("/approvals", params.ApprovalHandler.MountRoutes)
	r.Route("/rules", params.RulesHandler.MountRoutes)
	r.Route("/categories", params.CategoryHandler.MountRoutes)
	r.Route("/companies", params.CompanyHandler.MountRoutes)
	r.Route("/users", params.UserHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
