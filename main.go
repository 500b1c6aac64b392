package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"udf_backend_project/config"
	"udf_backend_project/controllers"
	"udf_backend_project/logger"
	"udf_backend_project/metrics"
	"udf_backend_project/middleware"
	"udf_backend_project/routes"
	"udf_backend_project/scheduler"
	"udf_backend_project/services"
	"udf_backend_project/services/datafetcher"
)

func main() {
	defaultPath := os.Getenv("UDF_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode(run(cfg, log), log))
}

// exitCode logs how run ended and flushes the logger before the process exits.
func exitCode(err error, log *zap.Logger) int {
	code := 0
	if err != nil {
		log.Error("UDF backend stopped with error", zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	return code
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("UDF backend starting",
		zap.String("environment", cfg.App.Environment),
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.Provider.BaseURL),
	)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	market, err := time.LoadLocation(cfg.Provider.Location)
	if err != nil {
		return fmt.Errorf("load market timezone %q: %w", cfg.Provider.Location, err)
	}

	db, err := config.InitDB(cfg.DB, cfg.App.Environment, log)
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	store := services.NewInstrumentStore(db, log)
	if err := store.Migrate(context.Background()); err != nil {
		return err
	}
	log.Info("Database migrations completed")

	m := metrics.New()
	fetcher := datafetcher.NewDataFetcher(datafetcher.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout), m, log)
	listCache := services.NewListCache(store, cfg.Cache.TTL, m)
	symbolService := services.NewSymbolService(store, log)
	historyService := services.NewHistoryService(fetcher, store, cfg.History, market, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var background sync.WaitGroup
	var syncStatus controllers.SyncStatus
	if cfg.Sync.Enabled {
		synchronizer := services.NewSymbolSynchronizer(fetcher, store, listCache, cfg.Sync, m, log)
		syncStatus = synchronizer
		background.Add(1)
		go func() {
			defer background.Done()
			synchronizer.Run(ctx)
		}()
	} else {
		log.Warn("Symbol synchronizer disabled; serving whatever the store holds")
	}

	var limiter *middleware.RateLimiter
	var cleaner scheduler.WindowCleaner
	if cfg.Server.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window)
		cleaner = limiter
	}

	jobs := scheduler.NewScheduler(store, cleaner, cfg.History, market, log)
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	router := routes.NewRouter(routes.Dependencies{
		UDF:         controllers.NewUDFController(symbolService, historyService, listCache, log),
		Health:      controllers.NewHealthController(store, syncStatus),
		Metrics:     m,
		RateLimiter: limiter,
		Static:      cfg.Static,
		Log:         log,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received signal, shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serverErr:
		cancel()
		background.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	// Stop the synchronizer before the server so no cycle writes during shutdown
	cancel()
	background.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server shutdown completed")
	return nil
}

func closeDB(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("Closing database failed", zap.Error(err))
		return
	}
	log.Info("Database connection closed")
}
