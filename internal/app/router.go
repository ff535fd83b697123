package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	consolhttp "github.com/odyssey-erp/caixa/internal/consol/http"
	"github.com/odyssey-erp/caixa/internal/observability"
	reconhttp "github.com/odyssey-erp/caixa/internal/reconciliation/http"
	registerhttp "github.com/odyssey-erp/caixa/internal/register/http"
	unitshttp "github.com/odyssey-erp/caixa/internal/units/http"
	"github.com/odyssey-erp/caixa/jobs"
	"github.com/odyssey-erp/caixa/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	UnitsHandler          *unitshttp.Handler
	RegisterHandler       *registerhttp.Handler
	ConsolHandler         *consolhttp.Handler
	ReconciliationHandler *reconhttp.Handler
	ReportHandler         *report.Handler
	JobHandler            *jobs.Handler
}

// NewRouter constructs the chi.Router with the cash ledger API mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.UnitsHandler != nil {
			params.UnitsHandler.MountRoutes(r)
		}
		if params.RegisterHandler != nil {
			params.RegisterHandler.MountRoutes(r)
		}
		if params.ConsolHandler != nil {
			params.ConsolHandler.MountRoutes(r)
		}
		if params.ReconciliationHandler != nil {
			params.ReconciliationHandler.MountRoutes(r)
		}
	})

	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
