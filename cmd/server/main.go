package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/tphummel/service_report/internal/db"
	"github.com/tphummel/service_report/internal/export"
	"github.com/tphummel/service_report/internal/handlers"
	"github.com/tphummel/service_report/internal/metrics"
	"github.com/tphummel/service_report/internal/middleware"
	"github.com/tphummel/service_report/internal/notify"
	"github.com/tphummel/service_report/internal/report"
	"github.com/tphummel/service_report/internal/warranty"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// Config is read from the environment.
type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	DBPath            string        `envconfig:"DB_PATH" default:":memory:"`
	ReportConfig      string        `envconfig:"REPORT_CONFIG"`
	NotifyToken       string        `envconfig:"NOTIFY_TOKEN"`
	SendDelay         time.Duration `envconfig:"SEND_DELAY" default:"2s"`
	RefreshInterval   time.Duration `envconfig:"REFRESH_INTERVAL" default:"1m"`
	Timezone          string        `envconfig:"TIMEZONE" default:"Europe/Lisbon"`
	ShareBaseURL      string        `envconfig:"SHARE_BASE_URL"`
	ExportFetchImages bool          `envconfig:"EXPORT_FETCH_IMAGES" default:"false"`
	FetchTimeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
}

// loadConfig reads service configuration from environment variables and
// applies defaults.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.ShareBaseURL == "" {
		cfg.ShareBaseURL = "http://localhost:" + cfg.Port
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid TIMEZONE %q: %v", cfg.Timezone, err)
	}

	catalog, err := report.LoadFile(cfg.ReportConfig, loc)
	if err != nil {
		log.Fatalf("failed to load reports: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	monitor := warranty.NewMonitor(slog.Default(), time.Now, cfg.RefreshInterval)
	for _, rep := range catalog.Reports() {
		monitor.Track(rep.Service.ID, warranty.NewWindow(rep.Service.Start, rep.WarrantyMonths))
	}

	var fetcher export.Fetcher
	if cfg.ExportFetchImages {
		fetcher = export.NewHTTPFetcher(cfg.FetchTimeout)
	}

	metrics.Register(monitor, database)

	h := &handlers.Handler{
		DB:           database,
		Catalog:      catalog,
		Monitor:      monitor,
		Dispatcher:   notify.NewDispatcher(database, cfg.SendDelay, slog.Default()),
		Exporter:     export.New(fetcher),
		Logger:       slog.Default(),
		Version:      version,
		Commit:       commit,
		ShareBaseURL: cfg.ShareBaseURL,
		Location:     loc,
	}

	skip := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	handler := middleware.RequestLogger(slog.Default(), skip, h.Routes(cfg.NotifyToken))

	// Cancelled on shutdown; stops the monitor and abandons in-flight sends.
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go monitor.Run(appCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		BaseContext:       func(net.Listener) context.Context { return appCtx },
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("listening", "port", cfg.Port, "reports", len(catalog.IDs()), "version", version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}
	slog.Info("server stopped")
}
