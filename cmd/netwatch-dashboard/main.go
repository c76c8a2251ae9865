package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	httpx "github.com/harishsairam-ops/DDoS-Hackathon/internal/http"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/animator"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/clock"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/dashboard"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/telemetry"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/ws"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/config"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/logger"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/tracing"
)

const serviceName = "netwatch-dashboard"

func main() {
	cfg := config.LoadDashboardConfig()
	log := logger.New(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(serviceName, cfg.TracingEnabled, os.Stderr, log)
	if err != nil {
		log.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	opts := []client.Option{client.WithTimeout(cfg.RequestTimeout)}
	if cfg.TracingEnabled {
		opts = append(opts, client.WithTracing())
	}
	api, err := client.New(cfg.APIBaseURL, opts...)
	if err != nil {
		log.Error("invalid authority url", "error", err, "url", cfg.APIBaseURL)
		os.Exit(1)
	}

	metrics := httpx.NewMetrics(nil)

	poll := poller.New(api, poller.Config{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		BackoffMax:     cfg.FetchBackoffMax,
	}, log)
	poll.SetMetrics(metrics)

	anim := animator.New(animator.Config{
		Capacity:      cfg.AnimatorCapacity,
		Mode:          animator.ParseMode(cfg.AnimatorMode),
		SpawnChance:   cfg.AnimatorSpawnChance,
		FrameInterval: cfg.FrameInterval(),
		Metrics:       metrics,
	}, log)

	hub := ws.NewHub()
	svc := dashboard.New(poll, anim, hub,
		telemetry.NewAggregator(cfg.BucketWidth, cfg.BucketCount),
		telemetry.NewProjector(cfg.RecencyWindow),
		clock.New(cfg.ClockInterval),
		dashboard.Options{FrameBroadcastEvery: cfg.FrameBroadcastEvery},
		log,
	)

	limiter := httpx.NewMemoryCommandLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisCommandLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis command limiter unavailable; budgets are per replica", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, svc, hub, limiter, metrics, httpx.Options{
		CommandRateLimit: cfg.CommandRateLimit,
		AddressRateLimit: cfg.AddressRateLimit,
		OperatorSecret:   cfg.OperatorJWTSecret,
	})
	defer router.Close()
	if cfg.OperatorJWTSecret == "" {
		log.Warn("OPERATOR_JWT_SECRET not set; block and unblock are unauthenticated")
	}

	var handler http.Handler = router
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(router, serviceName)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		poll.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		log.Info("dashboard server starting", "addr", cfg.Addr, "authority", api.BaseURL(), "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("dashboard server stopped")
}
