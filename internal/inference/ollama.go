package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// maxResponseBytes bounds how much of a reply is read.
const maxResponseBytes = 8 << 20

// OllamaClient talks to the native Ollama API.
type OllamaClient struct {
	baseURL     string
	model       string
	timeout     time.Duration
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOllamaClient creates a client for an Ollama server.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxTokens,
		// Timeout is enforced per call through the request context.
		httpClient: &http.Client{},
	}, nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Generate implements Client.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/api/generate", payload)
	if err != nil {
		return "", err
	}

	var resp ollamaGenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", endpointError(http.StatusOK, "failed to parse response: %v", err)
	}
	if resp.Error != "" {
		return "", endpointError(http.StatusOK, "%s", resp.Error)
	}
	return resp.Response, nil
}

// Status implements Client by listing installed models.
func (c *OllamaClient) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: ProviderOllama, BaseURL: c.baseURL, Model: c.model}
	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	st.Latency = time.Since(start)
	if err != nil {
		return st, err
	}
	st.Reachable = true

	var tags ollamaTagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return st, endpointError(http.StatusOK, "failed to parse model list: %v", err)
	}
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		st.Models = append(st.Models, name)
		if sameModel(name, c.model) {
			st.ModelAvailable = true
		}
	}
	return st, nil
}

func (c *OllamaClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, endpointError(resp.StatusCode, "%s", errResp.Error)
		}
		return nil, endpointError(resp.StatusCode, "%s", truncate(string(body), 512))
	}
	return body, nil
}

// sameModel matches model names, treating a missing tag as ":latest".
func sameModel(installed, want string) bool {
	if installed == want {
		return true
	}
	withTag := func(s string) string {
		if strings.Contains(s, ":") {
			return s
		}
		return s + ":latest"
	}
	return withTag(installed) == withTag(want)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Client = (*OllamaClient)(nil)
