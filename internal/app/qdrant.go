// Package app wires application components and startup helpers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/ragseed"
)

// EnsureQuestionBank creates the question collection if missing and, when
// enabled, seeds it from the local YAML banks. Failures are logged; the
// interview still runs without retrieval.
func EnsureQuestionBank(ctx context.Context, cfg config.Config, store ragseed.VectorStore, emb domain.Embedder) {
	if store == nil {
		return
	}
	if err := store.EnsureCollection(ctx, cfg.QuestionCollection, cfg.EmbeddingsDim, "Cosine"); err != nil {
		slog.Warn("qdrant ensure collection failed", slog.String("collection", cfg.QuestionCollection), slog.Any("error", err))
		return
	}
	if !cfg.SeedOnStartup || emb == nil {
		return
	}
	loaders, err := YAMLLoaders(cfg.QuestionSeedGlob)
	if err != nil {
		slog.Warn("question seed glob invalid", slog.Any("error", err))
		return
	}
	st, err := ragseed.Pipeline{Embedder: emb, Store: store, Collection: cfg.QuestionCollection, Dim: cfg.EmbeddingsDim}.Run(ctx, loaders...)
	if err != nil {
		slog.Warn("question bank seeding failed", slog.Any("error", err))
		return
	}
	slog.Info("question bank seeded", slog.Int("upserted", st.Upserted), slog.Int("loaders_failed", len(st.Failed)))
}

// YAMLLoaders returns a loader per file matching pattern.
func YAMLLoaders(pattern string) ([]ragseed.Loader, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("op=app.yaml_loaders: %w", err)
	}
	out := make([]ragseed.Loader, 0, len(files))
	for _, f := range files {
		out = append(out, ragseed.YAMLLoader{Path: f})
	}
	return out, nil
}
