package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/app"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/config"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/logger"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/telemetry"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel, err := telemetry.InitProvider(ctx, cfg.Telemetry, zl)
	if err != nil {
		zl.Warn("Telemetry disabled", zap.Error(err))
	}

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to build patient core", zap.Error(err))
	}
	if err := a.Start(ctx); err != nil {
		zl.Fatal("Failed to start session", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		zl.Info("patient-service listening",
			zap.String("addr", srv.Addr),
			zap.String("mode", string(cfg.Mode)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		zl.Error("Failed to release resources", zap.Error(err))
	}
	if otel != nil {
		if err := otel.Shutdown(shutdownCtx); err != nil {
			zl.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	zl.Info("Server stopped gracefully")
}
