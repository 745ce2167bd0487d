// Package main provides the worker entry point.
// The worker consumes interview report events from Redpanda and audits them
// against the stored interview records.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
)

const consumerGroup = "interview-report-audit"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", slog.Any("error", err))
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv), slog.String("topic", cfg.ReportsTopic))

	var audit auditor
	if cfg.UseSQLite() {
		db, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			slog.Error("database connection failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		audit.interviews = sqlite.NewInterviewRepo(db)
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("database connection failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		audit.interviews = postgres.NewInterviewRepo(pool)
	}

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, consumerGroup, cfg.ReportsTopic, audit.handle)
	if err != nil {
		slog.Error("failed to create report consumer", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("report consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
