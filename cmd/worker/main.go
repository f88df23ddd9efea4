package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/noah-isme/cargo-backoffice/internal/app"
	"github.com/noah-isme/cargo-backoffice/internal/config"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/queue"
	"github.com/noah-isme/cargo-backoffice/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "cargo-worker").Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, reg)
	queue.MustRegisterMetrics(cfg.MetricsNamespace, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   "cargo-worker",
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(openCtx, cfg, logger, "cargo-worker")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(cfg, logger, deps.DB, deps.Redis, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	worker := queue.NewWorker(queue.Config{
		RedisOpt:        deps.RedisOpt,
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{report.QueueReports: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})
	worker.Handle(report.TaskGoodsExport, svcs.Reports.HandleExportTask)

	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: obs.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
	if cfg.WorkerMetricsAddr != "" {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("worker metrics server")
			}
		}()
	}

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}

	if cfg.WorkerMetricsAddr != "" {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
