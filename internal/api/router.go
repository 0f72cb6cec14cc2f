package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/api/handlers"
	mw "github.com/Von-Base-Enterprises/core-nexus/internal/api/middleware"
	"github.com/Von-Base-Enterprises/core-nexus/internal/buildconfig"
	"github.com/Von-Base-Enterprises/core-nexus/internal/graph"
	"github.com/Von-Base-Enterprises/core-nexus/internal/importexport"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps are the assembled components the HTTP surface exposes. GraphStore
// and Syncer are nil when the graph is disabled; the graph routes then
// answer 404.
type Deps struct {
	Store      *unified.Store
	GraphStore *graph.Store
	Syncer     *graph.Syncer
	Importer   *importexport.Importer
	Exporter   *importexport.Exporter

	RateLimitRPS   float64
	RateLimitBurst int
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router *chi.Mux
	Syncer *graph.Syncer

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(deps Deps, logger *zap.Logger) *App {
	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Syncer:    deps.Syncer,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))

	healthHandler := handlers.NewHealthHandler(deps.Store, app.startTime)
	memoryHandler := handlers.NewMemoryHandler(deps.Store)
	ioHandler := handlers.NewImportExportHandler(deps.Importer, deps.Exporter)

	r.Get("/health", healthHandler.Health)
	r.Get("/providers", healthHandler.Providers)
	r.Get("/metrics", app.metricsHandler())

	r.Route("/memories", func(r chi.Router) {
		r.Post("/", memoryHandler.Create)
		r.Post("/query", memoryHandler.Query)
		r.Get("/", memoryHandler.List)
		r.Get("/stats", memoryHandler.Stats)
		r.Get("/{id}", memoryHandler.GetByID)
		r.Delete("/{id}", memoryHandler.Delete)
	})

	r.Route("/api/v1/memories", func(r chi.Router) {
		r.Post("/import", ioHandler.Import)
		r.Get("/import/{job_id}/status", ioHandler.ImportStatus)
		r.Delete("/import/{job_id}", ioHandler.ImportCancel)
		r.Post("/export", ioHandler.Export)
		r.Get("/export/gdpr/{user_id}", ioHandler.GDPR)
	})

	if deps.GraphStore != nil && deps.Syncer != nil {
		graphHandler := handlers.NewGraphHandler(deps.GraphStore, deps.Syncer, deps.Store)
		r.Route("/graph", func(r chi.Router) {
			r.Get("/stats", graphHandler.Stats)
			r.Post("/query", graphHandler.Query)
			r.Get("/explore/{entity_name}", graphHandler.Explore)
			r.Get("/path/{from}/{to}", graphHandler.Path)
			r.Get("/insights/{memory_id}", graphHandler.Insights)
			r.Post("/sync/{memory_id}", graphHandler.Sync)
			r.Post("/bulk-sync", graphHandler.BulkSync)
		})
	}

	return app
}

// Start launches background services.
func (app *App) Start() {
	if app.Syncer != nil {
		app.Syncer.Start()
	}
}

// Stop drains background services before shutdown.
func (app *App) Stop() {
	if app.Syncer != nil {
		app.Syncer.Stop()
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
