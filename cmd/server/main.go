// Command server starts the AI mock interviewer HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/app"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

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

	store, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("storage init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.close()
	if cfg.DataRetentionDays > 0 {
		go store.cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	ai := buildAI(cfg)
	if ai.qdrant != nil {
		app.EnsureQuestionBank(ctx, cfg, ai.qdrant, ai.embedder)
	}

	sessions, sessionsPing, closeSessions, err := buildRegistry(ctx, cfg, ai)
	if err != nil {
		slog.Error("session registry init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeSessions()

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		slog.Error("report publisher init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("failed to close report publisher", slog.Any("error", err))
		}
	}()

	interviews, err := usecase.NewInterviewService(usecase.InterviewDeps{
		Sessions:   sessions,
		Interviews: store.interviews,
		Users:      store.users,
		Model:      ai.client,
		Questions:  ai.questions,
		Judge:      ai.judge,
		Publisher:  publisher,
		Options:    ai.opts,
	})
	if err != nil {
		slog.Error("interview service init failed", slog.Any("error", err))
		os.Exit(1)
	}

	extractor, tikaPing := buildExtractor(cfg)
	deps := app.Dependencies{DB: store.ping, Redis: sessionsPing, Tika: tikaPing}
	if ai.qdrant != nil {
		deps.Qdrant = ai.qdrant
	}
	srv := httpserver.NewServer(cfg,
		usecase.NewAuthService(store.users),
		interviews,
		usecase.NewResumeService(extractor, store.users),
		app.BuildProbes(deps)...,
	)
	if !cfg.AuthEnabled() {
		slog.Warn("SESSION_SECRET not set; login sessions will not survive a restart")
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("storage", store.kind))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
