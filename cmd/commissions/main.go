// Package main запускает HTTP-сервер сервиса комиссий апортёров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/referral-commissions/internal/config"
	"github.com/mmeshcher/referral-commissions/internal/handler"
	"github.com/mmeshcher/referral-commissions/internal/middleware"
	"github.com/mmeshcher/referral-commissions/internal/notify"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotifyURL != "" {
		notifier = notify.NewClient(cfg.NotifyURL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.NewService(repo, notifier, logger,
		service.WithMetrics(service.NewMetrics(registry)),
		service.WithAdminEnrich(cfg.AdminSalesEnrich),
		service.WithEnrichTimeout(cfg.EnrichTimeout),
	)
	// Close дожидается фоновых начислений и закрывает пул соединений.
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("service close error", "error", err)
		}
	}()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is empty, referrer and admin areas will reject every token")
	}
	if cfg.WebhookSecret == "" {
		sugar.Warn("WEBHOOK_SECRET is empty, sales webhook will reject every call")
	}

	h := handler.NewHandler(svc, logger, middleware.NewAuthenticator(cfg.JWTSecret), handler.Options{
		WebhookSecret:        cfg.WebhookSecret,
		WebhookRatePerMinute: cfg.WebhookRatePerMinute,
		Gatherer:             registry,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting commissions server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}
