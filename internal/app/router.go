package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/billing"
	"github.com/fixdesk/fixdesk/internal/inventory"
	"github.com/fixdesk/fixdesk/internal/jobcards"
	"github.com/fixdesk/fixdesk/internal/masterdata/branches"
	"github.com/fixdesk/fixdesk/internal/masterdata/customers"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RBACMiddleware   rbac.Middleware
	BranchHandler    *branches.Handler
	CustomerHandler  *customers.Handler
	InventoryHandler *inventory.Handler
	JobHandler       *jobcards.Handler
	BillingHandler   *billing.Handler
	AuditHandler     *audit.Handler
	QueueHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with the API route tree.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.QueueHandler != nil {
		r.Route("/queue", params.QueueHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(params.RBACMiddleware.Resolve)
		api.Route("/branches", params.BranchHandler.MountRoutes)
		api.Route("/customers", params.CustomerHandler.MountRoutes)
		api.Route("/inventory", params.InventoryHandler.MountRoutes)
		api.Route("/jobs", params.JobHandler.MountRoutes)
		api.Route("/invoices", params.BillingHandler.MountRoutes)
		api.Route("/audit", params.AuditHandler.MountRoutes)
	})

	return r
}
