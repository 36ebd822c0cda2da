package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/invoice-api/internal/auth"
	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/database"
	"github.com/straye-as/invoice-api/internal/http/handler"
	"github.com/straye-as/invoice-api/internal/http/middleware"
	"github.com/straye-as/invoice-api/internal/http/router"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/jobs"
	"github.com/straye-as/invoice-api/internal/logger"
	"github.com/straye-as/invoice-api/internal/render"
	"github.com/straye-as/invoice-api/internal/repository"
	"github.com/straye-as/invoice-api/internal/service"
	"github.com/straye-as/invoice-api/internal/snapshot"
	"github.com/straye-as/invoice-api/internal/storage"
	"go.uber.org/zap"
)

// @title Straye Invoice API
// @version 1.0
// @description Invoice composition API: grouping, measured pagination, preview, PDF export and saved snapshots
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@straye.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// In development: uses environment variables
	// In staging/production: fetches from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	snapshotStorage, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	htmlRenderer, err := render.NewHTMLRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse invoice templates: %w", err)
	}
	pdfRenderer := newPDFEngine(ctx, &cfg.Export, htmlRenderer, log)

	measurer := render.NewMetricsMeasurer()
	if cfg.Layout.PagePaddingBottom > 0 {
		measurer.PagePaddingBottom = cfg.Layout.PagePaddingBottom
	}
	budget := invoice.Budget{
		PageHeight:        cfg.Layout.PageHeight,
		PageNumberReserve: cfg.Layout.PageNumberReserve,
	}

	invoiceService := service.NewInvoiceService(
		repository.NewProjectRepository(db),
		repository.NewBudgetItemRepository(db),
		snapshot.NewStore(snapshotStorage, log),
		htmlRenderer,
		pdfRenderer,
		measurer,
		budget,
		log,
	).WithRenderTimeout(cfg.Export.RenderTimeoutDuration())

	authMiddleware := auth.NewMiddleware(cfg, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, log)

	rt := router.NewRouter(cfg, log, db, authMiddleware, rateLimiter, invoiceHandler)

	scheduler := jobs.NewScheduler(log)
	reaper := jobs.NewSessionReaperJob(invoiceService, cfg.Sessions.IdleTTLDuration(), log, time.Minute)
	if err := scheduler.AddJob(jobs.SessionReaperJobName, cfg.Sessions.ReapSchedule, reaper.Run); err != nil {
		return fmt.Errorf("failed to register session reaper: %w", err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           rt.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		stopped := scheduler.Stop()
		<-stopped.Done()
		log.Info("Scheduler stopped")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully", zap.Int("open_sessions", invoiceService.SessionCount()))
	}

	return nil
}

// newPDFEngine picks the vector PDF engine. Gotenberg is used when configured
// and reachable; otherwise exports fall back to the built-in fpdf renderer.
func newPDFEngine(ctx context.Context, cfg *config.ExportConfig, htmlRenderer *render.HTMLRenderer, log *zap.Logger) render.VectorRenderer {
	if cfg.Engine != "gotenberg" {
		log.Info("PDF engine initialized", zap.String("engine", "native"))
		return render.NewPDFRenderer()
	}

	client := render.NewGotenbergClient(cfg.GotenbergURL, cfg.GotenbergTimeoutDuration())
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		log.Warn("Gotenberg not reachable, falling back to native PDF engine",
			zap.String("url", cfg.GotenbergURL),
			zap.Error(err),
		)
		return render.NewPDFRenderer()
	}

	log.Info("PDF engine initialized",
		zap.String("engine", "gotenberg"),
		zap.String("url", cfg.GotenbergURL),
	)
	return render.NewChromiumRenderer(htmlRenderer, client)
}
