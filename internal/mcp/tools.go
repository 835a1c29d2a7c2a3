package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

const extractToolName = "extract_action_items"

type documentInput struct {
	Ref        string `json:"ref,omitempty" jsonschema:"Stable document reference; generated when empty"`
	SourceType string `json:"source_type,omitempty" jsonschema:"email, chat_message or meeting_transcript (default email)"`
	Sender     string `json:"sender,omitempty" jsonschema:"Sender address or display name"`
	ReceivedAt string `json:"received_at,omitempty" jsonschema:"RFC 3339 timestamp or YYYY-MM-DD, used to resolve relative deadlines"`
	Subject    string `json:"subject,omitempty" jsonschema:"Email subject or meeting title"`
	Body       string `json:"body" jsonschema:"Document text"`
}

type extractInput struct {
	Documents []documentInput `json:"documents" jsonschema:"Documents to extract action items from"`
	Model     string          `json:"model,omitempty" jsonschema:"Model override; the server default is used when empty"`
}

type itemOutput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Assignee    string  `json:"assignee,omitempty"`
	DueDate     string  `json:"due_date,omitempty"`
	Priority    string  `json:"priority"`
	Confidence  float64 `json:"confidence"`
	Context     string  `json:"context,omitempty"`
	Tier        string  `json:"tier"`
}

type failureOutput struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type resultOutput struct {
	Ref        string         `json:"ref"`
	SourceType string         `json:"source_type"`
	Items      []itemOutput   `json:"items"`
	Dropped    int            `json:"dropped"`
	Skipped    bool           `json:"skipped,omitempty"`
	Attempts   int            `json:"attempts"`
	Failure    *failureOutput `json:"failure,omitempty"`
}

type summaryOutput struct {
	Documents int            `json:"documents"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Items     int            `json:"items"`
	Dropped   int            `json:"dropped"`
	ByTier    map[string]int `json:"by_tier"`
}

type extractOutput struct {
	Results []resultOutput `json:"results"`
	Summary summaryOutput  `json:"summary"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        extractToolName,
		Description: "Extract action items (tasks with assignee, due date, priority and confidence) from emails, chat messages and meeting transcripts",
	}, s.handleExtract)
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest, args extractInput) (*mcp.CallToolResult, extractOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, extractToolName)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, extractToolName)
		s.metrics.RecordInvocation(ctx, extractToolName, time.Since(start), toolErr)
	}()

	if len(args.Documents) == 0 {
		toolErr = fmt.Errorf("invalid input: documents must not be empty")
		return nil, extractOutput{}, toolErr
	}
	if len(args.Documents) > s.maxDocs {
		toolErr = fmt.Errorf("invalid input: too many documents: %d (max %d)", len(args.Documents), s.maxDocs)
		return nil, extractOutput{}, toolErr
	}

	docs := make([]extraction.SourceDocument, 0, len(args.Documents))
	for i, in := range args.Documents {
		doc, err := toSourceDocument(in)
		if err != nil {
			toolErr = fmt.Errorf("invalid documents[%d]: %w", i, err)
			return nil, extractOutput{}, toolErr
		}
		docs = append(docs, doc)
	}

	opts := s.extractor.Defaults()
	if m := strings.TrimSpace(args.Model); m != "" {
		opts.Model = m
	}

	results, err := s.extractor.ExtractBatch(ctx, docs, opts)
	if err != nil {
		toolErr = fmt.Errorf("extraction failed: %w", err)
		return nil, extractOutput{}, toolErr
	}

	summary := extraction.Summarize(results)
	s.logger.Debug("extract tool served",
		zap.Int("documents", summary.Documents),
		zap.Int("items", summary.Items),
		zap.Int("failed", summary.Failed),
	)

	out := toOutput(results, summary)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summaryText(summary)},
		},
	}, out, nil
}

var receivedLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func toSourceDocument(in documentInput) (extraction.SourceDocument, error) {
	doc := extraction.SourceDocument{
		Ref:        strings.TrimSpace(in.Ref),
		SourceType: extraction.SourceEmail,
		Sender:     in.Sender,
		Subject:    in.Subject,
		Body:       in.Body,
	}
	if doc.Ref == "" {
		doc.Ref = uuid.NewString()
	}
	if in.SourceType != "" {
		st, err := extraction.ParseSourceType(in.SourceType)
		if err != nil {
			return doc, err
		}
		doc.SourceType = st
	}
	if v := strings.TrimSpace(in.ReceivedAt); v != "" {
		var parsed bool
		for _, layout := range receivedLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				doc.ReceivedAt, parsed = t, true
				break
			}
		}
		if !parsed {
			return doc, fmt.Errorf("unrecognised received_at %q", v)
		}
	}
	return doc, nil
}

func toOutput(results []extraction.DocumentResult, summary extraction.BatchSummary) extractOutput {
	out := extractOutput{
		Results: make([]resultOutput, 0, len(results)),
		Summary: summaryOutput{
			Documents: summary.Documents,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Skipped:   summary.Skipped,
			Items:     summary.Items,
			Dropped:   summary.Dropped,
			ByTier:    make(map[string]int, len(summary.ByTier)),
		},
	}
	for tier, n := range summary.ByTier {
		out.Summary.ByTier[string(tier)] = n
	}

	for _, r := range results {
		ro := resultOutput{
			Ref:        r.Document.Ref,
			SourceType: string(r.Document.SourceType),
			Items:      make([]itemOutput, 0, len(r.Items)),
			Dropped:    r.Dropped,
			Skipped:    r.Skipped,
			Attempts:   r.Attempts,
		}
		if r.Failure != nil {
			ro.Failure = &failureOutput{Kind: string(r.Failure.Kind), Message: r.Failure.Message}
		}
		for _, item := range r.Items {
			it := itemOutput{
				Title:       item.Title,
				Description: item.Description,
				Priority:    string(item.Priority),
				Confidence:  item.Confidence,
				Context:     item.Context,
				Tier:        string(item.Tier),
			}
			if item.Assignee != nil {
				it.Assignee = *item.Assignee
			}
			if item.DueDate != nil {
				it.DueDate = item.DueDate.Format("2006-01-02")
			}
			ro.Items = append(ro.Items, it)
		}
		out.Results = append(out.Results, ro)
	}
	return out
}

func summaryText(s extraction.BatchSummary) string {
	text := fmt.Sprintf("Extracted %d action items from %d documents (%d auto-accept, %d needs review, %d rejected).",
		s.Items, s.Documents,
		s.ByTier[extraction.TierAutoAccept], s.ByTier[extraction.TierNeedsReview], s.ByTier[extraction.TierRejected])
	if s.Failed > 0 || s.Skipped > 0 {
		text += fmt.Sprintf(" %d failed, %d skipped.", s.Failed, s.Skipped)
	}
	return text
}
