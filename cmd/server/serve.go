package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wso2/ob-consent-engine/internal/router"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consent engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.serve()
		},
	}
}

func (a *application) serve() error {
	cfg, logger := a.cfg, a.logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ginRouter := router.SetupRouter(cfg, router.Dependencies{
		Consents: a.consents,
		Sessions: a.bridge,
		Health:   a.db,
		Metrics:  a.metrics,
		Logger:   logger,
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
	server := &http.Server{
		Addr:           serverAddr,
		Handler:        ginRouter,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	if cfg.Consent.ExpiryJobInterval > 0 {
		go a.runExpiryJob(ctx, cfg.Consent.ExpiryJobInterval)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", serverAddr).Info("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.db.LogStats()
	logger.Info("Server exited gracefully")
	return nil
}

// runExpiryJob expires lapsed consents of every organization until ctx ends
func (a *application) runExpiryJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.WithField("interval", interval.String()).Info("Consent expiry job started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := a.consents.ExpireConsents(ctx, "")
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Consent expiry run failed")
				continue
			}
			if count > 0 {
				a.logger.WithFields(logrus.Fields{"expired": count}).Debug("Consent expiry run finished")
			}
		}
	}
}
