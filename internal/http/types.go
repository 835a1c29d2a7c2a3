package http

import (
	"time"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/store"
)

// DocumentInput is one document in an extract request. Ref is generated
// when empty and SourceType defaults to email.
type DocumentInput struct {
	Ref        string     `json:"ref"`
	SourceType string     `json:"source_type"`
	Sender     string     `json:"sender"`
	ReceivedAt *time.Time `json:"received_at"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
}

// OptionsInput overrides the server's default options. Nil fields keep the
// default.
type OptionsInput struct {
	Model               *string  `json:"model"`
	AutoAcceptThreshold *float64 `json:"auto_accept_threshold"`
	ReviewThreshold     *float64 `json:"review_threshold"`
	MaxItems            *int     `json:"max_items"`
	MaxBodyChars        *int     `json:"max_body_chars"`
}

// ExtractRequest is the request body for POST /api/v1/extract.
type ExtractRequest struct {
	Documents []DocumentInput `json:"documents"`
	Options   *OptionsInput   `json:"options,omitempty"`
}

// ExtractResponse is the response body for POST /api/v1/extract.
type ExtractResponse struct {
	Results []extraction.DocumentResult `json:"results"`
	Summary extraction.BatchSummary     `json:"summary"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// InferenceStatusResponse is the response body for GET /api/v1/inference/status.
type InferenceStatusResponse struct {
	inference.Status
	Error string `json:"error,omitempty"`
}

// ListItemsResponse is the response body for GET /api/v1/action-items.
type ListItemsResponse struct {
	Items []store.Item `json:"items"`
	Count int          `json:"count"`
}

// UpdateItemRequest is the request body for PATCH /api/v1/action-items/:id.
type UpdateItemRequest struct {
	Status string `json:"status"`
}
