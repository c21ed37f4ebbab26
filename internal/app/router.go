package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	dashboardhttp "github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard/http"
	kpihttp "github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/kpi/http"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/movement"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/observability"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	MovementHandler  *movement.Handler
	KPIHandler       *kpihttp.Handler
	DashboardHandler *dashboardhttp.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router serving the KPI API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.MovementHandler != nil {
			r.Route("/movements", params.MovementHandler.MountRoutes)
		}
		if params.KPIHandler != nil {
			r.Route("/kpi", params.KPIHandler.MountRoutes)
		}
		if params.DashboardHandler != nil {
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
