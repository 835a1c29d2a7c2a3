// Package inference talks to the language model endpoint that turns prompts
// into raw text.
//
// Every backend and decorator implements Client. Failures are reported as
// *Error with one of three kinds:
//
//   - KindTimeout: the endpoint did not answer within the configured timeout
//   - KindUnavailable: the endpoint could not be reached (connection refused,
//     DNS failure, open circuit breaker)
//   - KindEndpoint: the endpoint answered with a non-success response
//
// Cancellation of the caller's context is returned as the context error and
// is not a timeout. Clients never retry; retry is a per-document decision
// made by the extraction orchestrator.
package inference

import (
	"context"
	"time"
)

// Request is a single generation call.
type Request struct {
	Model  string
	Prompt string
}

// Status describes the reachability of an endpoint and its model.
type Status struct {
	Backend        string        `json:"backend"`
	BaseURL        string        `json:"base_url"`
	Reachable      bool          `json:"reachable"`
	Model          string        `json:"model"`
	ModelAvailable bool          `json:"model_available"`
	Models         []string      `json:"models,omitempty"`
	Latency        time.Duration `json:"latency"`
}

// Client sends prompts to a model endpoint.
type Client interface {
	// Generate returns the raw text the model produced for the prompt.
	Generate(ctx context.Context, req Request) (string, error)

	// Status checks the endpoint and whether the configured model is installed.
	Status(ctx context.Context) (Status, error)
}
