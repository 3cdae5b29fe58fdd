package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"training_renewal_service/internal/app"
	"training_renewal_service/internal/domain/renewal"
	"training_renewal_service/internal/infra/config"
	idb "training_renewal_service/internal/infra/database"
	"training_renewal_service/internal/infra/logger"
	"training_renewal_service/internal/infra/ops"
	"training_renewal_service/internal/infra/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	mainLogger := logger.New(cfg)
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s, TickInterval: %s", cfg.LogLevel, cfg.Environment, cfg.TickInterval)

	// Database connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	// One-time schema capability probe; deployments without the recurring-test
	// migration run with the course lane only.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	caps, err := idb.DetectCapabilities(probeCtx, db)
	cancelProbe()
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not probe schema capabilities: %v", err)
	}

	// Repositories
	enrollmentRepo := idb.NewPostgresEnrollmentRepository(db)
	var testAttemptRepo renewal.CompletionRepository
	if caps.TestRenewalTracking {
		testAttemptRepo = idb.NewPostgresTestAttemptRepository(db)
	} else {
		mainLogger.Info("test_attempts renewal columns not found; test lane will be skipped.")
	}
	notificationRepo := idb.NewPostgresNotificationRepository(db)
	mainLogger.Info("Repositories initialized.")

	// Renewal service and scheduler
	renewalService := app.NewRenewalService(enrollmentRepo, testAttemptRepo, notificationRepo, mainLogger)
	renewalScheduler := scheduler.NewRenewalScheduler(renewalService, mainLogger, cfg.TickInterval)
	renewalScheduler.Start()

	// Ops HTTP surface: health, statistics, manual tick trigger, metrics.
	opsServer := ops.NewServer(cfg.HTTPListenAddr, renewalService, renewalScheduler, db, mainLogger)
	go func() {
		if err := opsServer.Start(); err != nil {
			mainLogger.Fatalf("FATAL: Ops HTTP server failed: %v", err)
		}
	}()

	mainLogger.Info("Application setup complete. Renewal scheduler is running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.Errorf("Ops HTTP server shutdown error: %v", err)
	}
	renewalScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
