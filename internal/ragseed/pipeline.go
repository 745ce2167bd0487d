// Package ragseed loads interview question/answer pairs from local and remote
// sources and ingests them into the question-bank vector collection.
package ragseed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Item is one ingestible question. Text is what gets embedded.
type Item struct {
	Text     string
	Question string
	Answer   string
	Source   string
}

// Loader produces items from one source.
type Loader interface {
	Name() string
	Load(ctx context.Context) ([]Item, error)
}

// VectorStore is the subset of the Qdrant client the pipeline writes to.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int, distance string) error
	Upsert(ctx context.Context, collection string, points []qdrant.Point) error
}

// Batch sizes.
const (
	DefaultEmbedBatch  = 16
	DefaultUpsertBatch = 100
)

// pointNamespace scopes deterministic point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ai-mock-interviewer/question-bank"))

// PointID is the stable point id for a text, so re-ingestion overwrites.
func PointID(collection, text string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+":"+strings.TrimSpace(text))).String()
}

// Pipeline embeds loader output and upserts it into a collection.
type Pipeline struct {
	Embedder    domain.Embedder
	Store       VectorStore
	Collection  string
	Dim         int
	EmbedBatch  int
	UpsertBatch int
	Logger      *slog.Logger
}

// Stats summarizes one run.
type Stats struct {
	Loaded   int
	Unique   int
	Upserted int
	Failed   []string
}

// Run executes every loader, skipping ones that fail, then ingests the
// deduplicated items. Having nothing to ingest is not an error.
func (p Pipeline) Run(ctx context.Context, loaders ...Loader) (Stats, error) {
	lg := p.Logger
	if lg == nil {
		lg = slog.Default()
	}
	var st Stats
	var all []Item
	for _, l := range loaders {
		items, err := l.Load(ctx)
		if err != nil {
			lg.Error("loader failed", slog.String("loader", l.Name()), slog.Any("error", err))
			st.Failed = append(st.Failed, l.Name())
			continue
		}
		lg.Info("loader finished", slog.String("loader", l.Name()), slog.Int("items", len(items)))
		all = append(all, items...)
	}
	st.Loaded = len(all)
	items := Dedupe(all)
	st.Unique = len(items)
	if len(items) == 0 {
		lg.Warn("no data collected from loaders")
		return st, nil
	}

	if err := p.Store.EnsureCollection(ctx, p.Collection, p.Dim, "Cosine"); err != nil {
		return st, fmt.Errorf("op=ragseed.run: %w", err)
	}

	embedBatch := p.EmbedBatch
	if embedBatch <= 0 {
		embedBatch = DefaultEmbedBatch
	}
	upsertBatch := p.UpsertBatch
	if upsertBatch <= 0 {
		upsertBatch = DefaultUpsertBatch
	}

	pending := make([]qdrant.Point, 0, upsertBatch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := p.Store.Upsert(ctx, p.Collection, pending); err != nil {
			return fmt.Errorf("op=ragseed.run: upsert: %w", err)
		}
		st.Upserted += len(pending)
		lg.Info("inserted batch", slog.Int("upserted", st.Upserted), slog.Int("total", len(items)))
		pending = pending[:0]
		return nil
	}

	for i := 0; i < len(items); i += embedBatch {
		end := min(i+embedBatch, len(items))
		chunk := items[i:end]
		texts := make([]string, len(chunk))
		for j, it := range chunk {
			texts[j] = it.Text
		}
		vecs, err := p.Embedder.Embed(ctx, texts)
		if err != nil {
			return st, fmt.Errorf("op=ragseed.run: embed: %w", err)
		}
		if len(vecs) != len(chunk) {
			return st, fmt.Errorf("op=ragseed.run: got %d vectors for %d texts", len(vecs), len(chunk))
		}
		for j, it := range chunk {
			pending = append(pending, qdrant.Point{
				ID:     PointID(p.Collection, it.Text),
				Vector: vecs[j],
				Payload: map[string]any{
					"text":     it.Text,
					"question": it.Question,
					"answer":   it.Answer,
					"source":   it.Source,
				},
			})
			if len(pending) >= upsertBatch {
				if err := flush(); err != nil {
					return st, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return st, err
	}
	return st, nil
}

// Dedupe drops empty texts and keeps the first item per text.
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it.Text = strings.TrimSpace(it.Text)
		if it.Text == "" {
			continue
		}
		if _, ok := seen[it.Text]; ok {
			continue
		}
		seen[it.Text] = struct{}{}
		out = append(out, it)
	}
	return out
}
