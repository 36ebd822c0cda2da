package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/straye-as/invoice-api/docs" // Import generated swagger docs
	"github.com/straye-as/invoice-api/internal/auth"
	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/database"
	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/http/handler"
	"github.com/straye-as/invoice-api/internal/http/middleware"
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	invoiceHandler *handler.InvoiceHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	invoiceHandler *handler.InvoiceHandler,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		invoiceHandler: invoiceHandler,
	}
}

func writeHealth(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness with connection pool stats
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.HealthCheckWithStats(r.Context(), rt.db)
		if err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			writeHealth(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"service": "database",
			})
			return
		}
		writeHealth(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"service": "database",
			"stats": map[string]interface{}{
				"max_open_connections": stats.MaxOpenConnections,
				"open_connections":     stats.OpenConnections,
				"in_use":               stats.InUse,
				"idle":                 stats.Idle,
				"wait_count":           stats.WaitCount,
				"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
			},
		})
	})

	// Swagger documentation
	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	read := rt.authMiddleware.RequirePermission(domain.PermissionInvoicesRead)
	write := rt.authMiddleware.RequirePermission(domain.PermissionInvoicesWrite)
	branding := rt.authMiddleware.RequirePermission(domain.PermissionBrandingWrite)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.Limit)
		if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
			r.Use(chimw.Timeout(timeout))
		}

		h := rt.invoiceHandler

		r.With(read, rt.rateLimiter.LimitExports).Get("/pdf-previews/{handle}", h.GetPDFPreview)

		r.Route("/invoice-sessions", func(r chi.Router) {
			r.With(write).Post("/", h.Open)

			r.Route("/{sessionID}", func(r chi.Router) {
				// Reads
				r.Group(func(r chi.Router) {
					r.Use(read)
					r.Get("/", h.Get)
					r.Get("/measurement-template", h.MeasurementTemplate)
					r.Get("/preview", h.Preview)
					r.Get("/snapshot.html", h.SnapshotHTML)
					r.Get("/snapshots", h.ListSnapshots)
					r.With(rt.rateLimiter.LimitExports).Get("/export.pdf", h.ExportPDF)
				})

				// Edits
				r.Group(func(r chi.Router) {
					r.Use(write)
					r.Delete("/", h.Close)
					r.Patch("/header", h.UpdateHeader)
					r.With(branding).Post("/branding/commit", h.CommitBranding)

					r.Put("/grouping", h.SetGroupField)
					r.Post("/grouping/toggle", h.ToggleGroupValue)
					r.Post("/grouping/select-all", h.SelectAllGroupValues)
					r.Post("/items/reload", h.ReloadItems)

					r.Post("/measure", h.Measure)
					r.Put("/geometry", h.SubmitGeometry)
					r.Put("/pages/current", h.SetCurrentPage)
					r.Post("/pages/toggle", h.TogglePage)
					r.Post("/pages/select-all", h.SelectAllPages)

					r.With(rt.rateLimiter.LimitExports).Post("/pdf-preview", h.CreatePDFPreview)
					r.Delete("/pdf-preview", h.ReleasePDFPreview)

					r.Post("/snapshots", h.SaveSnapshot)
					r.Post("/snapshots/load", h.LoadSnapshot)
					r.Post("/snapshots/select", h.ToggleSavedSelection)
					r.Post("/snapshots/select-all", h.SelectAllSaved)
					r.Delete("/snapshots", h.DeleteSnapshots)
				})
			})
		})
	})

	return r
}
