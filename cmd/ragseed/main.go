// Command ragseed ingests interview question banks into the vector store.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	aiadapter "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai"
	realai "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	qdrantcli "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/app"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/ragseed"
)

const (
	defaultDatasets = "UdayG01/DataScienceInterviewQuestions,manasuma/ml_interview_qa"
	defaultGitHub   = "https://github.com/youssefHosni/Data-Science-Interview-Questions-Answers/blob/main/SQL%20%26%20DB%20Interview%20Questions%20%26%20Answers%20for%20Data%20Scientists.md"
	defaultArticles = "https://www.analyticsvidhya.com/blog/2024/06/data-science-coding-questions/"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not read .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	yamlGlob := flag.String("yaml", cfg.QuestionSeedGlob, "glob of local YAML question banks")
	datasets := flag.String("hf", getenv("RAGSEED_HF_DATASETS", defaultDatasets), "comma-separated Hugging Face datasets")
	hfRows := flag.Int("hf-max-rows", 500, "max rows per Hugging Face dataset")
	github := flag.String("github", getenv("RAGSEED_GITHUB_URLS", defaultGitHub), "comma-separated GitHub markdown URLs")
	articles := flag.String("html", getenv("RAGSEED_HTML_URLS", defaultArticles), "comma-separated article URLs")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaders, err := app.YAMLLoaders(*yamlGlob)
	if err != nil {
		log.Fatal(err)
	}
	fetcher := ragseed.DefaultFetcher()
	if ds := splitList(*datasets); len(ds) > 0 {
		loaders = append(loaders, ragseed.HuggingFaceLoader{Datasets: ds, MaxRows: *hfRows, Fetcher: fetcher})
	}
	if urls := splitList(*github); len(urls) > 0 {
		loaders = append(loaders, ragseed.GitHubMarkdownLoader{URLs: urls, Fetcher: fetcher})
	}
	if urls := splitList(*articles); len(urls) > 0 {
		loaders = append(loaders, ragseed.HTMLArticleLoader{URLs: urls, Fetcher: fetcher})
	}

	q := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	ai := realai.New(cfg)
	st, err := ragseed.Pipeline{
		Embedder:   aiadapter.NewEmbedCache(ai, cfg.EmbedCacheSize),
		Store:      q,
		Collection: cfg.QuestionCollection,
		Dim:        cfg.EmbeddingsDim,
	}.Run(ctx, loaders...)
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("question bank seeded",
		slog.Int("loaded", st.Loaded),
		slog.Int("unique", st.Unique),
		slog.Int("upserted", st.Upserted),
		slog.Any("failed_loaders", st.Failed))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}
