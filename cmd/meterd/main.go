package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/infrastructure/queue/nats"
	"github.com/ragline/ragline/internal/observability/logging"
	"github.com/ragline/ragline/internal/observability/metrics"
)

// meterd consumes generation attempt records off the metering subject and
// exposes them as prometheus series for billing and quota dashboards. It
// shares the subject with the API but needs none of its other backends.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("meterd", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		logger.Error("connect metering subject failed", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	meter := metrics.NewMeterMetrics("meterd")
	mux := http.NewServeMux()
	mux.Handle("/metrics", meter.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:        ":" + cfg.MeterMetricsPort,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("meter metrics listening", "port", cfg.MeterMetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("meter metrics server failed", "error", err)
			stop()
		}
	}()

	logger.Info("meterd subscribed", "subject", cfg.NATSSubject)
	err = sink.Subscribe(ctx, func(_ context.Context, record domain.AttemptRecord) {
		meter.ObserveAttempt("meterd", record)
		logger.Debug("attempt recorded",
			"tenant_id", record.TenantID,
			"provider", record.Provider,
			"model", record.Model,
			"outcome", record.Outcome,
			"cost", record.Cost,
		)
	})
	if err != nil {
		logger.Error("meterd subscribe failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("meter metrics shutdown failed", "error", err)
	}
}
