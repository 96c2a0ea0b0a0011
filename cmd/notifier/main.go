package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/tracing"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	shutdownTracing := tracing.Setup(log, "storefront-notifier", cfg.TraceSampleRatio)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	m := metrics.NewServerMetrics("storefront-notifier")
	metricsServer := &http.Server{
		Addr:        cfg.MetricsAddr,
		Handler:     m.Handler(),
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	reader := notify.NewReader(cfg.KafkaBrokers, cfg.NotifyTopic, cfg.NotifyGroup)
	mailer := notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, nil)
	consumer := notify.NewConsumer(log, reader, mailer, m, cfg.WorkerCount, cfg.QueueSize)

	log.Info("consuming confirmations", "topic", cfg.NotifyTopic, "group", cfg.NotifyGroup, "smtp", cfg.SMTPAddr)
	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}
	log.Info("notifier shutdown complete")
}
