package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/bootstrap"
	"github.com/fiscaldesk/fiscaldesk/internal/config"
	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux,
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeUsage(ctx, func(handlerCtx context.Context, record domain.UsageRecord) error {
		workerMetrics.StartRecord()
		start := time.Now()

		saveCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		saveErr := app.AuditRepo.SaveUsage(saveCtx, record)

		workerMetrics.FinishRecord("worker", time.Since(start), saveErr)
		if !record.CreatedAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", time.Since(record.CreatedAt))
		}
		return saveErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
