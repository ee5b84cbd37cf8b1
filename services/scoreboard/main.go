// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/gauntlet/pkg/extensions"
	"github.com/AleutianAI/gauntlet/pkg/logging"
	"github.com/AleutianAI/gauntlet/services/scoreboard/config"
	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
	"github.com/AleutianAI/gauntlet/services/scoreboard/ratelimit"
	"github.com/AleutianAI/gauntlet/services/scoreboard/routes"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage/badgerstore"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage/memory"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage/postgres"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

const serviceName = "scoreboard-service"

// initTracer wires the OTLP gRPC exporter. Tracing is opt-in: when
// OTEL_EXPORTER_OTLP_ENDPOINT is unset the service runs without it.
func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return nil, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildTiers opens the storage tiers in fallback order. A tier that
// fails to open is replaced with its unconfigured stand-in so the
// chain skips it; the service never refuses to boot over storage.
func buildTiers(ctx context.Context, cfg config.ScoreboardConfig, logger *slog.Logger) ([]storage.Tier, func()) {
	pgTier := postgres.Unconfigured()
	if cfg.DatabaseURL != "" {
		t, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("postgres tier unavailable, continuing without it", "error", err)
		} else {
			pgTier = t
			slog.Info("postgres tier ready")
		}
	} else {
		slog.Info("GAUNTLET_DATABASE_URL not set, postgres tier disabled")
	}

	badgerTier := badgerstore.Unconfigured()
	if cfg.BadgerDir != "" {
		bcfg := badgerstore.DefaultConfig()
		bcfg.Dir = cfg.BadgerDir
		bcfg.Logger = logger
		t, err := badgerstore.Open(bcfg)
		if err != nil {
			slog.Warn("badger tier unavailable, continuing without it", "error", err)
		} else {
			badgerTier = t
			slog.Info("badger tier ready", "dir", cfg.BadgerDir)
		}
	} else {
		slog.Info("GAUNTLET_BADGER_DIR not set, badger tier disabled")
	}

	tiers := []storage.Tier{pgTier, badgerTier, memory.New()}
	closeFn := func() {
		if err := badgerTier.Close(); err != nil {
			slog.Error("failed to close badger tier", "error", err)
		}
		if err := pgTier.Close(); err != nil {
			slog.Error("failed to close postgres tier", "error", err)
		}
	}
	return tiers, closeFn
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := config.Global

	logger, closeLog := logging.New(logging.Config{
		Service: "scoreboard",
		JSON:    true,
		LogDir:  os.Getenv("GAUNTLET_LOG_DIR"),
	})
	defer closeLog()
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	if cleanup != nil {
		defer cleanup(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tiers, closeTiers := buildTiers(ctx, cfg, logger)
	defer closeTiers()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	chain, err := storage.NewChain(logger, tiers,
		storage.WithTierTimeout(cfg.TierTimeout),
		storage.WithChainMetrics(metrics))
	if err != nil {
		log.Fatalf("failed to build the storage chain: %v", err)
	}

	scores := storage.NewScoreStore(chain, metrics)
	progress := storage.NewProgressStore(chain, metrics)

	limiter := ratelimit.NewFixedWindow(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	sweeper := ratelimit.NewSweeper(limiter, cfg.RateLimitSweepInterval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	var identity extensions.IdentityProvider = &extensions.AnonymousProvider{}
	if cfg.JWTSecret != "" {
		provider, err := extensions.NewJWTIdentityProvider([]byte(cfg.JWTSecret))
		if err != nil {
			log.Fatalf("failed to build the JWT identity provider: %v", err)
		}
		identity = provider
		slog.Info("JWT identity verification enabled")
	} else {
		slog.Warn("GAUNTLET_JWT_SECRET not set, all requests are anonymous")
	}

	router := gin.Default()
	if cleanup != nil {
		router.Use(otelgin.Middleware(serviceName))
	}

	routes.SetupRoutes(router, routes.Deps{
		Chain:              chain,
		Scores:             scores,
		Progress:           progress,
		Limiter:            limiter,
		Metrics:            metrics,
		Identity:           identity,
		RateLimitPerWindow: cfg.RateLimitPerWindow,
		TopLimit:           cfg.TopLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting the scoreboard server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
