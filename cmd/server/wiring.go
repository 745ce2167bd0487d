package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	aiadapter "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/questionbank"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/textextractor"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/app"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/judge"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/service/registry"
)

type cleaner interface {
	RunPeriodic(ctx context.Context, interval time.Duration)
}

type storage struct {
	kind       string
	users      domain.UserRepository
	interviews domain.InterviewRepository
	cleanup    cleaner
	ping       app.Pinger
	close      func()
}

// openStorage picks SQLite for sqlite:// URLs and Postgres otherwise.
func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	if cfg.UseSQLite() {
		db, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return storage{}, err
		}
		return storage{
			kind:       "sqlite",
			users:      sqlite.NewUserRepo(db),
			interviews: sqlite.NewInterviewRepo(db),
			cleanup:    sqlite.NewCleanupService(db, cfg.DataRetentionDays),
			ping:       app.SQLPinger(db),
			close:      func() { _ = db.Close() },
		}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return storage{}, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return storage{}, err
	}
	return storage{
		kind:       "postgres",
		users:      postgres.NewUserRepo(pool),
		interviews: postgres.NewInterviewRepo(pool),
		cleanup:    postgres.NewCleanupService(pool, cfg.DataRetentionDays),
		ping:       pool,
		close:      pool.Close,
	}, nil
}

type aiStack struct {
	client    *real.Client
	embedder  domain.Embedder
	qdrant    *qdrant.Client
	questions domain.QuestionSource
	judge     *judge.Judge
	opts      interview.Options
}

func buildAI(cfg config.Config) aiStack {
	client := real.New(cfg)
	st := aiStack{
		client:   client,
		embedder: aiadapter.NewEmbedCache(client, cfg.EmbedCacheSize),
		opts:     interviewOptions(cfg),
	}
	if cfg.QdrantURL != "" {
		st.qdrant = qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey)
		st.questions = questionbank.New(st.embedder, st.qdrant, cfg.QuestionCollection)
	} else {
		slog.Warn("QDRANT_URL not set; interviews run without question retrieval")
	}

	policy, err := judge.ParsePolicy(cfg.JudgePolicy())
	if err != nil {
		slog.Error("invalid judge policy", slog.Any("error", err))
		os.Exit(1)
	}
	rubric, err := config.LoadRubric(config.DefaultRubricPath)
	if err != nil {
		slog.Warn("judge rubric not loaded", slog.Any("error", err))
	}
	j, err := judge.New(client, policy, judge.WithRubric(rubric), judge.WithTimeout(cfg.LLMTimeout))
	if err != nil {
		slog.Error("judge init failed", slog.Any("error", err))
		os.Exit(1)
	}
	st.judge = j
	return st
}

// interviewOptions is shared by new sessions and sessions restored from Redis.
func interviewOptions(cfg config.Config) interview.Options {
	return interview.Options{
		MinTurns:           cfg.InterviewMinTurns,
		MaxTurns:           cfg.InterviewMaxTurns,
		RetrievalTimeout:   cfg.RetrievalTimeout,
		GenerationTimeout:  cfg.LLMTimeout,
		OnRetrievalFailure: func(error) { observability.RetrievalFailed() },
	}
}

// buildRegistry returns a Redis-backed store when REDIS_URL is set so
// sessions survive restarts and are shared across replicas.
func buildRegistry(ctx context.Context, cfg config.Config, st aiStack) (registry.Store, app.Pinger, func(), error) {
	if cfg.RedisURL == "" {
		mem := registry.NewMemory(cfg.SessionCapacity, cfg.SessionTTL)
		go mem.RunJanitor(ctx, time.Minute)
		return mem, nil, func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("op=registry.redis: %w", err)
	}
	rdb := redis.NewClient(opt)
	factory := func(snap interview.Snapshot) (*interview.Session, error) {
		return interview.Restore(snap, st.client, st.questions, st.opts)
	}
	// A turn holds the session lock for at most one request.
	lockTTL := app.RequestTimeout(cfg) + cfg.RetrievalTimeout
	store := registry.NewRedis(rdb, cfg.SessionTTL, factory, registry.WithLockTimings(lockTTL, app.RequestTimeout(cfg)))
	return store, app.RedisPinger(rdb), func() { _ = rdb.Close() }, nil
}

type reportPublisher interface {
	domain.ReportPublisher
	Close() error
}

func buildPublisher(ctx context.Context, cfg config.Config) (reportPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("KAFKA_BROKERS not set; report events are not published")
		return redpanda.NoopPublisher{}, nil
	}
	return redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.ReportsTopic)
}

// buildExtractor routes PDFs in-process and sends .docx to Tika when configured.
func buildExtractor(cfg config.Config) (domain.TextExtractor, app.Pinger) {
	roots := []string{os.TempDir()}
	if cfg.TikaURL == "" {
		return textextractor.New(nil, roots...), nil
	}
	tc := tika.New(cfg.TikaURL, tika.WithRoots(roots...))
	return textextractor.New(tc, roots...), tc
}
