package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicops/scheduling-engine/internal/api/router"
	"github.com/clinicops/scheduling-engine/internal/audit"
	appconfig "github.com/clinicops/scheduling-engine/internal/config"
	"github.com/clinicops/scheduling-engine/internal/housekeeping"
	"github.com/clinicops/scheduling-engine/internal/http/handlers"
	"github.com/clinicops/scheduling-engine/internal/observability/metrics"
	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/schedule"
	"github.com/clinicops/scheduling-engine/internal/scoring"
	"github.com/clinicops/scheduling-engine/internal/sor"
	"github.com/clinicops/scheduling-engine/internal/strikes"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/internal/worker/syncworker"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling engine",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	rules, err := appconfig.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Error("failed to load scheduling rules", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// The audit trail runs on database/sql; it writes outside the mutation
	// transaction on purpose.
	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngineMetrics(registry)

	// Stores
	standings := provider.NewStore(pool)
	grid := schedule.NewGridStore(pool)
	strikeStore := strikes.NewStore(pool)
	queueStore := syncqueue.NewStore(pool)
	snapshots := scoring.NewStore(pool)
	auditor := audit.NewService(auditDB)

	locks := provider.NewLockArena()
	ledger := strikes.NewLedger(strikeStore, standings, rules.Penalties, queueStore, logger.Component("strikes"))

	sorClient := sor.NewClient(cfg.SorBaseURL, cfg.SorToken, logger.Component("sor"))
	sorAdapter := sor.NewAdapter(sorClient)

	gridService := schedule.NewService(schedule.ServiceConfig{
		Pool:      pool,
		Grid:      grid,
		Standings: standings,
		Ledger:    ledger,
		Queue:     queueStore,
		Bookings:  sorAdapter,
		History:   sorAdapter,
		Scores:    snapshots,
		Auditor:   auditor,
		Tiers:     rules.Tiers,
		Blackout:  schedule.NewBlackoutWindow(cfg.BlackoutDays),
		Locks:     locks,
		Logger:    logger.Component("schedule"),
		Metrics:   engineMetrics,
	})

	scoreEngine, err := scoring.NewEngine(rules.Weights, rules.Tiers, snapshots, standings, locks, logger.Component("scoring"), engineMetrics)
	if err != nil {
		logger.Error("failed to build score engine", "error", err)
		os.Exit(1)
	}

	lease := syncqueue.NewSweepLease(rdb, "", cfg.SweepLeaseTTL)
	processor := syncqueue.NewProcessor(queueStore, sorAdapter, lease, logger.Component("syncqueue"), engineMetrics).
		WithBatchSize(cfg.SweepBatchSize).
		WithStaleClaimAfter(cfg.SweepLeaseTTL).
		WithAuditor(auditor)

	sweeper := housekeeping.NewSweeper(queueStore, auditor,
		cfg.HousekeepingSyncRetention, cfg.HousekeepingAuditRetention, logger.Component("housekeeping"))

	gridHandler := handlers.NewGridHandler(gridService, standings, ledger, rules.Tiers, logger)
	adminHandler := handlers.NewAdminHandler(queueStore, ledger, queueStore, logger)
	cronHandler := handlers.NewCronHandler(processor, scoreEngine, sorAdapter, sweeper, logger)

	r := router.New(&router.Config{
		Logger:            logger,
		GridHandler:       gridHandler,
		AdminHandler:      adminHandler,
		CronHandler:       cronHandler,
		AdminAuthSecret:   cfg.AdminJWTSecret,
		CronSharedSecret:  cfg.CronSharedSecret,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		MutationRateLimit: 5,
		MutationBurst:     10,
	})

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.SyncWorkerEnabled {
		worker := syncworker.NewWorker(processor, logger.Component("syncworker")).WithInterval(cfg.SyncInterval)
		go worker.Run(workerCtx)
		logger.Info("sync worker started", "interval", cfg.SyncInterval)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
