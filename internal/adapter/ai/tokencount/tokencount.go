// Package tokencount counts tokens for chat completion calls.
//
// It uses tiktoken-go with cl100k_base as the approximation for open models
// served through OpenAI-compatible routers.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Per-message framing overhead used by OpenAI-compatible chat APIs.
const (
	tokensPerMessage = 3
	replyPriming     = 3
)

// TokenUsage represents token counts for an LLM API call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)
	c.mu.RLock()
	enc, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, err
		}
	}
	c.cache[name] = enc
	return enc, nil
}

// normalizeModelName maps router model ids to a tiktoken-known model.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return "gpt-4o"
	default:
		// Llama, Mistral, Qwen, Gemma and friends: cl100k_base is close enough.
		return "gpt-4"
	}
}

// CountMessages counts prompt tokens for an ordered message list.
func (c *Counter) CountMessages(msgs []domain.Message, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	n := replyPriming
	for _, m := range msgs {
		n += tokensPerMessage
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

// CountTokens counts the tokens in text.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CalculateUsage computes usage for a chat call. Encoding failures fall back
// to a four-characters-per-token estimate.
func (c *Counter) CalculateUsage(msgs []domain.Message, completion, model string) TokenUsage {
	prompt, err := c.CountMessages(msgs, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		prompt = EstimateMessages(msgs)
	}
	out, err := c.CountTokens(completion, model)
	if err != nil {
		out = len(completion) / 4
	}
	return TokenUsage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out, Model: model}
}

// EstimateMessages is the encoding-free estimate used when tiktoken is unavailable.
func EstimateMessages(msgs []domain.Message) int {
	n := replyPriming
	for _, m := range msgs {
		n += tokensPerMessage + (len(m.Role)+len(m.Content))/4
	}
	return n
}
