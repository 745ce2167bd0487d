// Package real implements domain.ModelClient and domain.Embedder against
// OpenAI-compatible HTTP APIs (OpenRouter, Groq, Hugging Face router, OpenAI).
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// statusError is a non-2xx provider response.
type statusError struct {
	op     string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.op, e.status, e.body)
}

// Client talks to the chat and embeddings endpoints.
type Client struct {
	cfg      config.Config
	provider string
	chatHC   *http.Client
	embedHC  *http.Client
	breaker  *observability.CircuitBreaker
	tokens   *tokencount.Counter
}

// New constructs a client. The chat timeout comes from LLM_TIMEOUT; callers
// may impose a tighter deadline through the context.
func New(cfg config.Config) *Client {
	provider := ProviderName(cfg.LLMBaseURL)
	b := observability.NewCircuitBreaker("llm_"+provider, cfg.LLMBreakerFailures, cfg.LLMBreakerCooldown)
	b.IsFailure = countsAgainstBreaker
	return &Client{
		cfg:      cfg,
		provider: provider,
		chatHC:   &http.Client{Timeout: cfg.LLMTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		embedHC:  &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker:  b,
		tokens:   tokencount.NewCounter(),
	}
}

// ProviderName derives a metrics label from a base URL.
func ProviderName(baseURL string) string {
	u := strings.ToLower(baseURL)
	switch {
	case strings.Contains(u, "openrouter"):
		return "openrouter"
	case strings.Contains(u, "groq"):
		return "groq"
	case strings.Contains(u, "huggingface"):
		return "huggingface"
	case strings.Contains(u, "openai.com"):
		return "openai"
	default:
		return "openai_compatible"
	}
}

// Breaker exposes the chat circuit breaker for readiness and tests.
func (c *Client) Breaker() *observability.CircuitBreaker { return c.breaker }

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate performs exactly one chat completion call. It never retries.
func (c *Client) Generate(ctx domain.Context, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages", domain.ErrInvalidArgument)
	}
	tracer := otel.Tracer("ai.real")
	ctx, span := tracer.Start(ctx, "ai.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", c.provider),
		attribute.String("ai.model", c.cfg.LLMModel),
		attribute.Int("ai.messages", len(messages)),
	)
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("provider", c.provider), slog.String("model", c.cfg.LLMModel))

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Temperature: c.cfg.LLMTemperature,
		MaxTokens:   c.cfg.LLMMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.generate: %w", err)
	}

	var out chatResponse
	start := time.Now()
	err = c.breaker.Call(func() error {
		return c.doChat(ctx, body, &out)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveAIRequest(c.provider, "chat", outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		lg.Warn("chat completion failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		return "", classify(ctx, "op=ai.generate", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("op=ai.generate: empty completion")
	}
	reply := out.Choices[0].Message.Content

	if out.Usage != nil {
		observability.AddAITokens(c.provider, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	} else {
		u := c.tokens.CalculateUsage(messages, reply, c.cfg.LLMModel)
		observability.AddAITokens(c.provider, u.PromptTokens, u.CompletionTokens)
	}
	lg.Debug("chat completion ok", slog.Duration("elapsed", time.Since(start)), slog.Int("reply_len", len(reply)))
	return reply, nil
}

func (c *Client) doChat(ctx context.Context, body []byte, out *chatResponse) error {
	endpoint := strings.TrimRight(c.cfg.LLMBaseURL, "/") + "/chat/completions"
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")
	if c.cfg.LLMAPIKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	}
	if c.provider == "openrouter" {
		if c.cfg.LLMReferer != "" {
			r.Header.Set("HTTP-Referer", c.cfg.LLMReferer)
		}
		r.Header.Set("X-Title", c.cfg.LLMTitle)
	}
	resp, err := c.chatHC.Do(r)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{op: "chat", status: resp.StatusCode, body: readSnippet(resp.Body, 512)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	return nil
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per text. Transient failures are retried with
// exponential backoff; 4xx responses other than 429 are permanent.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.EmbeddingsAPIKey == "" || c.cfg.EmbeddingsModel == "" {
		slog.Error("embeddings API key or model missing", slog.Bool("has_api_key", c.cfg.EmbeddingsAPIKey != ""), slog.String("model", c.cfg.EmbeddingsModel))
		return nil, fmt.Errorf("%w: EMBEDDINGS_API_KEY or EMBEDDINGS_MODEL missing", domain.ErrInvalidArgument)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	provider := ProviderName(c.cfg.EmbeddingsBaseURL)
	b, err := json.Marshal(map[string]any{"model": c.cfg.EmbeddingsModel, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("op=ai.embed: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.EmbeddingsBaseURL, "/") + "/embeddings"

	var out embedResponse
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.EmbeddingsAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.embedHC.Do(r)
		if err != nil {
			observability.ObserveAIRequest(provider, "embed", "error", time.Since(start))
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			observability.ObserveAIRequest(provider, "embed", "error", time.Since(start))
			serr := &statusError{op: "embed", status: resp.StatusCode, body: readSnippet(resp.Body, 512)}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(serr)
			}
			slog.Warn("embeddings provider non-2xx; retrying", slog.String("provider", provider), slog.Int("status", resp.StatusCode))
			return serr
		}
		out = embedResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode embed response: %w", err)
		}
		observability.ObserveAIRequest(provider, "embed", "ok", time.Since(start))
		return nil
	}
	maxElapsed, initial, maxInterval, mult := c.cfg.GetAIBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = mult
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, classify(ctx, "op=ai.embed", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("op=ai.embed: got %d vectors for %d texts", len(out.Data), len(texts))
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	res := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		res[i] = v
	}
	return res, nil
}

// classify maps transport and status failures onto the domain taxonomy.
func classify(ctx context.Context, op string, err error) error {
	var se *statusError
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamTimeout, err)
	case errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamTimeout, err)
	case errors.As(err, &se) && se.status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamRateLimit, err)
	case errors.As(err, &se) && (se.status == http.StatusRequestTimeout || se.status == http.StatusGatewayTimeout):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// countsAgainstBreaker ignores client errors other than 429 and caller cancellation.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// readSnippet reads up to n bytes from r.
func readSnippet(r io.Reader, n int64) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return strings.TrimSpace(string(b))
}
