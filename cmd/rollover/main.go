package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homebudget/internal/config"
	"homebudget/internal/database"
	"homebudget/internal/logger"
	"homebudget/internal/services"
)

func main() {
	once := flag.Bool("once", false, "run a single rollover pass and exit")
	flag.Parse()

	logger.Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	if err := run(*once); err != nil {
		logger.Get().Fatalf("Rollover error: %v", err)
	}
}

func run(once bool) error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	db := dbManager.DB()
	templateService := services.NewBudgetTemplateService(db)
	adjustmentService := services.NewAdjustmentService(db, templateService, services.AdjustmentOptions{
		RegenerateLockedSnapshots: appConfig.RegenerateLockedSnapshots,
		Concurrency:               appConfig.RolloverConcurrency,
	})

	if once {
		return rollover(adjustmentService)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Rollover worker started",
		"interval", appConfig.RolloverInterval.String(),
		"concurrency", appConfig.RolloverConcurrency,
	)

	ticker := time.NewTicker(appConfig.RolloverInterval)
	defer ticker.Stop()

	// First pass at start so a restart right after midnight does not wait a full interval.
	if err := rollover(adjustmentService); err != nil {
		log.Errorw("rollover pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Rollover worker stopped")
			return nil
		case <-ticker.C:
			if err := rollover(adjustmentService); err != nil {
				log.Errorw("rollover pass failed", "error", err)
			}
		}
	}
}

// rollover applies every household's due adjustments once.
func rollover(adjustments services.AdjustmentServicer) error {
	started := time.Now()
	result, err := adjustments.ApplyDueAdjustments(started)
	if err != nil {
		return err
	}

	log := logger.Get()
	for householdID, reason := range result.Failures {
		log.Warnw("household rollover failed", "household_id", householdID, "error", reason)
	}
	log.Infow("Rollover pass completed",
		"households", result.Households,
		"processed", result.Processed,
		"failures", len(result.Failures),
		"duration", time.Since(started).String(),
	)
	return nil
}
