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

	"github.com/billbatista/fieldmiles/api"
	"github.com/billbatista/fieldmiles/auth"
	"github.com/billbatista/fieldmiles/config"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/ingest"
	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/middleware"
	"github.com/billbatista/fieldmiles/photo"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// services wires the domain services on top of a backend. The returned
// stop function drains the background workers.
func services(b *backend, cfg config.Config) (*trip.Service, *ingest.Service, *eventlogger.Worker, func(), error) {
	worker := eventlogger.NewWorker(b.events, 100)
	worker.Start()

	trips := trip.NewService(b.trips,
		trip.WithDirectory(b.users),
		trip.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
	)
	requeue := trip.NewRequeue(trips, b.readings, cfg.Reconcile.RequeueBuffer, cfg.Reconcile.RequeueBackoff)
	requeue.Start()

	uploader, err := photo.NewDiskUploader(cfg.Photos.Dir, cfg.Photos.BaseURL)
	if err != nil {
		requeue.Shutdown()
		worker.Shutdown()
		return nil, nil, nil, nil, err
	}

	ingestSvc := ingest.NewService(b.readings, b.users, uploader, trips,
		ingest.WithRequeue(requeue),
		ingest.WithEvents(worker),
		ingest.WithUploadTimeout(cfg.Photos.UploadTimeout),
	)

	stop := func() {
		requeue.Shutdown()
		worker.Shutdown()
	}
	return trips, ingestSvc, worker, stop, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.WithComponent("server")

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	trips, ingestSvc, worker, stop, err := services(b, cfg)
	if err != nil {
		return err
	}
	defer stop()

	handler := api.NewHandler(
		ingestSvc,
		trips,
		b.users,
		b.sessions,
		auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry),
		worker,
		b.events,
		middleware.NewRateLimiter(cfg.RateLimit.ReadingsPerSecond, cfg.RateLimit.Burst),
		api.Config{
			PhotoDir:      cfg.Photos.Dir,
			PhotoPrefix:   cfg.Photos.BaseURL,
			MaxPhotoBytes: cfg.Photos.MaxBytes,
			SecureCookies: cfg.Auth.SecureCookies,
			AccessLog:     true,
		},
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("storage", cfg.Storage.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
