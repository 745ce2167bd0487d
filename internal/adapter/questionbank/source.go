// Package questionbank implements domain.QuestionSource on top of a vector
// store of ingested interview questions.
package questionbank

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// MissingAnswer is the reference answer used when a point carries none.
const MissingAnswer = "Answer not found in DB."

// TopK is how many nearest questions are considered for the random pick.
const TopK = 7

// Variations diversify the query so repeated calls for a topic land on
// different neighbourhoods of the bank.
var Variations = []string{"interview questions", "concepts", "advanced", "basic", "coding", "sql queries"}

// Searcher is the vector search the source needs.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]qdrant.ScoredPoint, error)
}

// Source picks a random question near a randomized topic query.
type Source struct {
	embedder   domain.Embedder
	search     Searcher
	collection string

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Source.
type Option func(*Source)

// WithRand injects the random source, for deterministic tests.
func WithRand(r *rand.Rand) Option { return func(s *Source) { s.rnd = r } }

// New builds a Source.
func New(embedder domain.Embedder, search Searcher, collection string, opts ...Option) *Source {
	s := &Source{
		embedder:   embedder,
		search:     search,
		collection: collection,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // question selection is not security sensitive
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetQuestion implements domain.QuestionSource. An empty result is (nil, nil).
func (s *Source) GetQuestion(ctx context.Context, topic string) (*domain.Question, error) {
	tracer := otel.Tracer("questionbank")
	ctx, span := tracer.Start(ctx, "questionbank.GetQuestion")
	defer span.End()

	query := topic + " " + Variations[s.intn(len(Variations))]
	span.SetAttributes(attribute.String("questionbank.query", query))

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("op=questionbank.get_question: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("op=questionbank.get_question: no embedding returned")
	}
	hits, err := s.search.Search(ctx, s.collection, vecs[0], TopK)
	if err != nil {
		return nil, fmt.Errorf("op=questionbank.get_question: %w", err)
	}
	span.SetAttributes(attribute.Int("questionbank.hits", len(hits)))
	if len(hits) == 0 {
		return nil, nil
	}
	hit := hits[s.intn(len(hits))]
	text := payloadString(hit.Payload, "text")
	if text == "" {
		text = payloadString(hit.Payload, "question")
	}
	if text == "" {
		return nil, nil
	}
	answer := payloadString(hit.Payload, "answer")
	if answer == "" {
		answer = MissingAnswer
	}
	return &domain.Question{Text: text, Answer: answer, Source: payloadString(hit.Payload, "source")}, nil
}

func (s *Source) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

func payloadString(p map[string]any, key string) string {
	v, ok := p[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
