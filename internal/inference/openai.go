package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 compatibility layer and llama.cpp servers.
type OpenAIClient struct {
	client      *openai.Client
	baseURL     string
	model       string
	timeout     time.Duration
	temperature float32
	topP        float32
	maxTokens   int
}

// NewOpenAIClient creates a chat completions client. BaseURL should include
// the API version path, e.g. http://localhost:11434/v1.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		baseURL:     oc.BaseURL,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: float32(cfg.Temperature),
		topP:        float32(cfg.TopP),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", endpointError(http.StatusOK, "empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Status implements Client by listing the models the endpoint serves.
func (c *OpenAIClient) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: ProviderOpenAI, BaseURL: c.baseURL, Model: c.model}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	list, err := c.client.ListModels(callCtx)
	st.Latency = time.Since(start)
	if err != nil {
		return st, c.classify(ctx, err)
	}
	st.Reachable = true
	for _, m := range list.Models {
		st.Models = append(st.Models, m.ID)
		if sameModel(m.ID, c.model) {
			st.ModelAvailable = true
		}
	}
	return st, nil
}

func (c *OpenAIClient) classify(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindEndpoint, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindEndpoint, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return classifyTransport(parent, err)
}

var _ Client = (*OpenAIClient)(nil)
