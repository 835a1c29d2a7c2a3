package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAI(t *testing.T, mux *http.ServeMux) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Provider = ProviderOpenAI
	cfg.BaseURL = srv.URL + "/v1"
	cfg.APIKey = "sk-test"
	cfg.Timeout = time.Second
	c, err := NewOpenAIClient(cfg)
	require.NoError(t, err)
	return c
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"[{\"title\":\"Book room\"}]"},"finish_reason":"stop"}]}`))
	})
	c := newOpenAI(t, mux)

	out, err := c.Generate(context.Background(), Request{Prompt: "extract"})
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Book room"}]`, out)

	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "extract", got.Messages[0].Content)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
}

func TestOpenAIClient_Generate_EmptyChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	})
	c := newOpenAI(t, mux)

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindEndpoint, KindOf(err))
}

func TestOpenAIClient_Generate_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
	})
	c := newOpenAI(t, mux)

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindEndpoint, ie.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ie.StatusCode)
	assert.False(t, IsRetryable(err))
}

func TestOpenAIClient_Generate_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := newOpenAI(t, mux)
	c.timeout = 50 * time.Millisecond

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestOpenAIClient_Status(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.1:8b","object":"model"},{"id":"qwen2:7b","object":"model"}]}`))
	})
	c := newOpenAI(t, mux)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Reachable)
	assert.True(t, st.ModelAvailable)
	assert.Equal(t, ProviderOpenAI, st.Backend)
	assert.Equal(t, []string{"llama3.1:8b", "qwen2:7b"}, st.Models)
}

func TestNewOpenAIClient_RequiresBaseURLAndModel(t *testing.T) {
	_, err := NewOpenAIClient(Config{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAIClient(Config{BaseURL: "http://localhost:8080/v1"})
	assert.Error(t, err)
}
