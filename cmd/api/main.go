package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"atc-insights-go/internal/api"
	"atc-insights-go/internal/app"
	"atc-insights-go/internal/config"
	"atc-insights-go/internal/logger"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	log := logger.New(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log = &logger.Logger{Entry: log.WithField("service", cfg.ServiceName)}
	log.WithField("environment", cfg.Log.Environment).Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise pipeline")
	}

	server := api.NewServer(a.Pipeline, api.Config{
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
		MetricsHandler: a.Telemetry.MetricsHandler,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(cfg.Transcriber.TimeoutSec)*time.Second + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server terminated")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("pipeline shutdown incomplete")
	}
	log.Info("service stopped")
}
