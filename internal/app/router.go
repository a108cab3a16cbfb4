package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vaultgate-labs/vaultgate/internal/assets"
	"github.com/vaultgate-labs/vaultgate/internal/dispatch"
	"github.com/vaultgate-labs/vaultgate/internal/hooks"
	"github.com/vaultgate-labs/vaultgate/internal/observability"
	"github.com/vaultgate-labs/vaultgate/internal/registry"
	"github.com/vaultgate-labs/vaultgate/internal/vault"
	"github.com/vaultgate-labs/vaultgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	DispatchHandler *dispatch.Handler
	RegistryHandler *registry.Handler
	HooksHandler    *hooks.Handler
	VaultHandler    *vault.Handler
	AssetsHandler   *assets.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with VaultGate defaults.
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

	if params.DispatchHandler != nil {
		r.Route("/dispatch", params.DispatchHandler.MountRoutes)
	}
	if params.RegistryHandler != nil {
		r.Route("/registry", params.RegistryHandler.MountRoutes)
	}
	if params.HooksHandler != nil {
		r.Route("/hooks", params.HooksHandler.MountRoutes)
	}
	if params.VaultHandler != nil {
		r.Route("/vault", params.VaultHandler.MountRoutes)
	}
	if params.AssetsHandler != nil {
		r.Route("/assets", params.AssetsHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
