package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/app"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/config"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/logger"
)

// One-shot job that makes sure the configured test patient account and its
// profile exist in the live backing services.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Mode != config.ModeLive {
		zl.Info("Sample mode seeds its own accounts. Nothing to do.")
		return
	}
	cfg.Bootstrap.Enabled = true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to build patient core", zap.Error(err))
	}
	defer a.Close()

	zl.Info("Test profile bootstrap - starting", zap.String("email", cfg.Bootstrap.Email))
	if err := a.EnsureTestProfile(ctx); err != nil {
		if errors.Is(err, app.ErrBootstrapDisabled) {
			zl.Warn("Bootstrap not configured")
			return
		}
		zl.Error("Test profile bootstrap failed", zap.Error(err))
		a.Close()
		zl.Sync()
		os.Exit(1)
	}
	zl.Info("Test profile bootstrap - finished")
}
