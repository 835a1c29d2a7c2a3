package extraction

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies the kind of communication a document came from.
type SourceType string

const (
	SourceEmail             SourceType = "email"
	SourceChatMessage       SourceType = "chat_message"
	SourceMeetingTranscript SourceType = "meeting_transcript"
)

// ParseSourceType maps a source type name, including the aliases used by
// chat and transcript collectors, onto a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email", "mail":
		return SourceEmail, nil
	case "chat_message", "chat-message", "chat", "teams_message", "teams":
		return SourceChatMessage, nil
	case "meeting_transcript", "meeting-transcript", "transcript", "meeting":
		return SourceMeetingTranscript, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// Label returns the human readable name used in prompts.
func (t SourceType) Label() string {
	switch t {
	case SourceChatMessage:
		return "chat message"
	case SourceMeetingTranscript:
		return "meeting transcript"
	case SourceEmail:
		return "email"
	default:
		return string(t)
	}
}

// SourceDocument is one unit of raw input. It is passed by value and never
// modified by the pipeline.
type SourceDocument struct {
	Ref        string     `json:"ref"`
	SourceType SourceType `json:"source_type"`
	Sender     string     `json:"sender,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
}

// Options are the per-batch processing options shared by every document.
type Options struct {
	Model               string  `json:"model"`
	AutoAcceptThreshold float64 `json:"auto_accept_threshold"`
	ReviewThreshold     float64 `json:"review_threshold"`
	// MaxItems caps the items kept per document. Zero means no cap.
	MaxItems int `json:"max_items"`
	// MaxBodyChars bounds the document body placed in the prompt. Zero means no limit.
	MaxBodyChars int `json:"max_body_chars"`
}

// Default option values.
const (
	DefaultModel               = "llama3.1:8b"
	DefaultAutoAcceptThreshold = 0.9
	DefaultReviewThreshold     = 0.7
	DefaultMaxItems            = 20
	DefaultMaxBodyChars        = 2000
)

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Model:               DefaultModel,
		AutoAcceptThreshold: DefaultAutoAcceptThreshold,
		ReviewThreshold:     DefaultReviewThreshold,
		MaxItems:            DefaultMaxItems,
		MaxBodyChars:        DefaultMaxBodyChars,
	}
}

// Validate reports a *ConfigError for options that cannot be used.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Model) == "" {
		return &ConfigError{Field: "model", Reason: "must not be empty"}
	}
	if o.MaxItems < 0 {
		return &ConfigError{Field: "max_items", Reason: "must be >= 0"}
	}
	if o.MaxBodyChars < 0 {
		return &ConfigError{Field: "max_body_chars", Reason: "must be >= 0"}
	}
	_, err := NewGate(o.AutoAcceptThreshold, o.ReviewThreshold)
	return err
}

// ExtractionRequest pairs a document with the options it is processed under.
type ExtractionRequest struct {
	Document SourceDocument
	Options  Options
}

// CandidateItem is a parsed but unvalidated item from a model reply.
type CandidateItem map[string]any

// Priority of an action item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ReviewTier is the bucket an item lands in based on its confidence.
type ReviewTier string

const (
	TierAutoAccept  ReviewTier = "auto_accept"
	TierNeedsReview ReviewTier = "needs_review"
	TierRejected    ReviewTier = "rejected"
)

// rank orders tiers from least to most accepted.
func (t ReviewTier) rank() int {
	switch t {
	case TierAutoAccept:
		return 2
	case TierNeedsReview:
		return 1
	default:
		return 0
	}
}

// ActionItem is a validated task extracted from a document.
type ActionItem struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority"`
	Confidence  float64    `json:"confidence"`
	Context     string     `json:"context,omitempty"`
	SourceRef   string     `json:"source_ref"`
	SourceType  SourceType `json:"source_type"`
	Tier        ReviewTier `json:"tier"`
}

// FailureKind classifies a document level failure.
type FailureKind string

const (
	FailureInferenceTimeout     FailureKind = "inference_timeout"
	FailureInferenceUnavailable FailureKind = "inference_unavailable"
	FailureInferenceError       FailureKind = "inference_error"
	FailureParse                FailureKind = "parse_failure"
)

// Failure describes why a document produced no items.
type Failure struct {
	Kind        FailureKind `json:"kind"`
	DocumentRef string      `json:"document_ref"`
	Message     string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: document %s: %s", f.Kind, f.DocumentRef, f.Message)
}

// DocumentResult is the outcome for one document in a batch.
type DocumentResult struct {
	// Document is the input as submitted, kept so failures can be resubmitted.
	Document SourceDocument `json:"document"`
	Items    []ActionItem   `json:"items"`
	// Dropped counts candidates rejected by normalization or the item cap.
	Dropped  int           `json:"dropped"`
	Failure  *Failure      `json:"failure,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the document was processed without failure.
func (r DocumentResult) OK() bool {
	return r.Failure == nil
}

// Failed returns the documents whose results carry a failure, in order.
func Failed(results []DocumentResult) []SourceDocument {
	var docs []SourceDocument
	for _, r := range results {
		if r.Failure != nil {
			docs = append(docs, r.Document)
		}
	}
	return docs
}

// BatchSummary aggregates a batch for reporting.
type BatchSummary struct {
	Documents int                 `json:"documents"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Skipped   int                 `json:"skipped"`
	Items     int                 `json:"items"`
	Dropped   int                 `json:"dropped"`
	ByTier    map[ReviewTier]int  `json:"by_tier"`
	Failures  map[FailureKind]int `json:"failures,omitempty"`
}

// Summarize counts outcomes across results.
func Summarize(results []DocumentResult) BatchSummary {
	s := BatchSummary{
		Documents: len(results),
		ByTier:    make(map[ReviewTier]int, 3),
	}
	for _, r := range results {
		s.Dropped += r.Dropped
		switch {
		case r.Failure != nil:
			s.Failed++
			if s.Failures == nil {
				s.Failures = make(map[FailureKind]int)
			}
			s.Failures[r.Failure.Kind]++
		case r.Skipped:
			s.Skipped++
		default:
			s.Succeeded++
		}
		for _, item := range r.Items {
			s.Items++
			s.ByTier[item.Tier]++
		}
	}
	return s
}
