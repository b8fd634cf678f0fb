package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/config"
	"github.com/mamadbah2/foodcost/internal/metrics"
	"github.com/mamadbah2/foodcost/internal/repository/memory"
	"github.com/mamadbah2/foodcost/internal/repository/mongodb"
	"github.com/mamadbah2/foodcost/internal/repository/sheets"
	"github.com/mamadbah2/foodcost/internal/scheduler"
	"github.com/mamadbah2/foodcost/internal/server/handlers"
	"github.com/mamadbah2/foodcost/internal/server/router"
	reportingsvc "github.com/mamadbah2/foodcost/internal/service/reporting"
	"github.com/mamadbah2/foodcost/internal/service/worksheet"
	"github.com/mamadbah2/foodcost/pkg/clients/notify"
	"github.com/mamadbah2/foodcost/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Logging.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := openStore(cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	var (
		appMetrics     *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		appMetrics = metrics.New(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	worksheetSvc := worksheet.NewService(store, calc.NewEngine(cfg.Calc.Profile), appMetrics, baseLogger.Named("svc.worksheet"))

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Warn("google sheets not configured, publishing disabled")
	}
	reportingSvc := reportingsvc.NewService(worksheetSvc, sheetsRepo, cfg.Calc.Profile, baseLogger.Named("svc.reporting"))

	var notifier notify.Client
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewClient(cfg.Notify)
		baseLogger.Info("digest notifications enabled")
	} else {
		baseLogger.Warn("notify webhook missing, daily digest will not be sent")
	}

	worksheetHandler := handlers.NewWorksheetHandler(worksheetSvc, reportingSvc, baseLogger.Named("handlers.worksheet"))
	engine := router.New(worksheetHandler, router.Options{Metrics: appMetrics, MetricsHandler: metricsHandler}, baseLogger.Named("router"))

	// Initialize Scheduler
	sched := scheduler.NewScheduler(cfg.Reporting, worksheetSvc, reportingSvc, notifier, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		// No write timeout: day streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("profile", string(cfg.Calc.Profile)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config, base *zap.Logger) (worksheet.Store, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		base.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, base.Named("repo.mongodb"))
	if err != nil {
		return nil, err
	}
	return repo, nil
}
