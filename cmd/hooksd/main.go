package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betofilippi/plataforma-hooks/internal/auth"
	"github.com/betofilippi/plataforma-hooks/internal/breaker"
	"github.com/betofilippi/plataforma-hooks/internal/config"
	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/health"
	"github.com/betofilippi/plataforma-hooks/internal/ingest"
	"github.com/betofilippi/plataforma-hooks/internal/logging"
	"github.com/betofilippi/plataforma-hooks/internal/metrics"
	"github.com/betofilippi/plataforma-hooks/internal/orchestrator"
	"github.com/betofilippi/plataforma-hooks/internal/retry"
	"github.com/betofilippi/plataforma-hooks/internal/router"
	"github.com/betofilippi/plataforma-hooks/internal/store"
	"github.com/betofilippi/plataforma-hooks/internal/subscriptions"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize structured logging
	logger := logging.New(cfg.AppName)

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// DB connect
	pool, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	if err := store.EnsureSchema(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("delivery schema setup failed")
	}
	if err := subscriptions.EnsureSchema(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("subscription schema setup failed")
	}
	st := store.NewPostgres(pool)
	subs := subscriptions.NewPostgres(pool)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// Shared circuit breaker state: the router skips open circuits at fanout
	// and the orchestrator skips them at attempt time.
	breakers := breaker.NewRegistry(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)

	rt := router.New(subs, st, breakers, logger, cfg.Defaults.MaxAttempts)

	policy := retry.NewPolicy()
	policy.Base = cfg.Retry.Base
	policy.MaxDelay = cfg.Retry.MaxDelay
	policy.JitterPercent = cfg.Retry.JitterPercent
	policy.RetryClientErrors = cfg.Retry.RetryClientErrors

	attempter := delivery.NewAttempter(cfg.UserAgent).WithDefaultTimeout(cfg.Defaults.Timeout)
	orch := orchestrator.New(st, subs, attempter, policy, breakers, logger, orchestrator.Config{
		PoolSize:     cfg.Worker.PoolSize,
		ScanInterval: cfg.Worker.ScanInterval,
		BatchSize:    cfg.Worker.BatchSize,
		BreakerDelay: cfg.Worker.BreakerDelay,
	})
	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	// Due-backlog gauge
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := st.CountDue(ctx, time.Now().UTC()); err == nil {
					metrics.UpdateDueBacklog(float64(n))
				}
			}
		}
	}()

	// NSQ event consumer
	consumer, err := ingest.NewConsumer(cfg.NSQ.EventsTopic, cfg.NSQ.RouterChannel, rt, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	// Connecting directly to NSQD forces channel creation, instead of the channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	// HTTP API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	ingest.NewService(rt, st, subs, logger).Register(mux)

	var handler http.Handler = mux
	if cfg.API.AuthSecret != "" {
		validator, err := auth.NewJWTValidator(cfg.API.AuthSecret, cfg.API.Issuer, cfg.API.Audience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("auth setup failed")
		}
		handler = validator.HTTPMiddleware(mux)
	} else {
		logger.Plain().Warn("API_AUTH_SECRET not set, management API is unauthenticated")
	}

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: handler}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("HTTP server failed")
		}
	}()

	logger.Plain().Info("hooks engine started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down hooks engine")
	consumer.Stop()
	cancel()
	<-orchDone
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("hooks engine stopped")
}
