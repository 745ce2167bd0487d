package real

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

func testConfig(url string) config.Config {
	return config.Config{
		AppEnv:             "test",
		LLMAPIKey:          "k",
		LLMBaseURL:         url,
		LLMModel:           "meta-llama/Llama-3.1-8B-Instruct",
		LLMTemperature:     0.4,
		LLMMaxTokens:       256,
		LLMTimeout:         5 * time.Second,
		LLMBreakerFailures: 2,
		LLMBreakerCooldown: time.Minute,
		EmbeddingsAPIKey:   "ek",
		EmbeddingsBaseURL:  url,
		EmbeddingsModel:    "text-embedding-3-small",
	}
}

func TestGenerate_SendsMessagesAndReturnsContent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"What is a p-value?"}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	reply, err := c.Generate(context.Background(), []domain.Message{
		{Role: domain.MessageSystem, Content: "rules"},
		{Role: domain.MessageUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "What is a p-value?", reply)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.MessageSystem, got.Messages[0].Role)
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, domain.ErrUpstreamRateLimit},
		{"gateway timeout", http.StatusGatewayTimeout, domain.ErrUpstreamTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			_, err := New(testConfig(srv.URL)).Generate(context.Background(), []domain.Message{{Role: "user", Content: "x"}})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerate_DeadlineIsUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(testConfig(srv.URL)).Generate(ctx, []domain.Message{{Role: "user", Content: "x"}})
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestGenerate_SingleAttemptAndBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	msgs := []domain.Message{{Role: "user", Content: "x"}}
	for i := 0; i < 2; i++ {
		_, err := c.Generate(context.Background(), msgs)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, observability.StateOpen, c.Breaker().State())

	_, err := c.Generate(context.Background(), msgs)
	require.ErrorIs(t, err, observability.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestGenerate_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad model"}`))
	}))
	defer srv.Close()
	c := New(testConfig(srv.URL))
	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad model")
	}
	assert.Equal(t, observability.StateClosed, c.Breaker().State())
}

func TestGenerate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	_, err := New(testConfig(srv.URL)).Generate(context.Background(), []domain.Message{{Role: "user", Content: "x"}})
	require.Error(t, err)

	_, err = New(testConfig(srv.URL)).Generate(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEmbed_RetriesTransientThenOrdersByIndex(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer ek", r.Header.Get("Authorization"))
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.5]},{"index":0,"embedding":[0.25]}]}`))
	}))
	defer srv.Close()

	vecs, err := New(testConfig(srv.URL)).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.25}, {0.5}}, vecs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestEmbed_ClientErrorIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := New(testConfig(srv.URL)).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestEmbed_MissingKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.EmbeddingsAPIKey = ""
	_, err := New(cfg).Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "openrouter", ProviderName("https://openrouter.ai/api/v1"))
	assert.Equal(t, "groq", ProviderName("https://api.groq.com/openai/v1"))
	assert.Equal(t, "huggingface", ProviderName("https://router.huggingface.co/v1"))
	assert.Equal(t, "openai", ProviderName("https://api.openai.com/v1"))
	assert.Equal(t, "openai_compatible", ProviderName("http://127.0.0.1:11434/v1"))
}
