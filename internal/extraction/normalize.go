package extraction

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultConfidence is used when a candidate carries no numeric confidence.
const DefaultConfidence = 0.5

var (
	titleKeys       = []string{"title", "task", "action", "action_item", "name", "summary"}
	descriptionKeys = []string{"description", "details", "detail"}
	assigneeKeys    = []string{"assignee", "owner", "assigned_to", "responsible"}
	dueDateKeys     = []string{"due_date", "due", "deadline", "due_by", "duedate"}
	priorityKeys    = []string{"priority"}
	confidenceKeys  = []string{"confidence", "confidence_score", "score"}
	contextKeys     = []string{"context", "reason", "rationale"}
)

// NormalizeItem validates a candidate and coerces it into an ActionItem.
// Only a missing title (or a candidate that is not an object) fails; every
// other field degrades to a default. Relative due dates resolve against ref.
// The returned item carries no tier yet.
func NormalizeItem(c CandidateItem, doc SourceDocument, ref time.Time) (ActionItem, error) {
	if c == nil {
		return ActionItem{}, &NormalizationError{Reason: ReasonInvalidItem}
	}
	fields := lowerKeys(c)

	title := stringField(fields, titleKeys)
	if title == "" {
		return ActionItem{}, &NormalizationError{Reason: ReasonMissingTitle}
	}

	item := ActionItem{
		Title:       title,
		Description: stringField(fields, descriptionKeys),
		Priority:    normalizePriority(stringField(fields, priorityKeys)),
		Confidence:  normalizeConfidence(lookup(fields, confidenceKeys)),
		Context:     stringField(fields, contextKeys),
		SourceRef:   doc.Ref,
		SourceType:  doc.SourceType,
	}
	if a := stringField(fields, assigneeKeys); a != "" {
		item.Assignee = &a
	}
	if due, ok := parseDueDate(lookup(fields, dueDateKeys), ref); ok {
		item.DueDate = &due
	}
	return item, nil
}

func lowerKeys(c CandidateItem) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		lk := strings.ToLower(strings.TrimSpace(k))
		// First spelling wins when a reply repeats a key with different case.
		if _, exists := out[lk]; !exists {
			out[lk] = v
		}
	}
	return out
}

func lookup(fields map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// stringField returns the first non-blank string among keys, trimmed.
func stringField(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" && !isNullWord(s) {
				return s
			}
		}
	}
	return ""
}

func isNullWord(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "nil":
		return true
	}
	return false
}

func normalizePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent", "critical":
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

type floater interface {
	Float64() (float64, error)
}

// normalizeConfidence coerces v into [0, 1]. Non-numeric input falls back to
// DefaultConfidence; out of range numbers are clamped.
func normalizeConfidence(v any) float64 {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return DefaultConfidence
	}
	return clamp01(f)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case floater:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasSuffix(s, "%") {
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
			return f / 100, err == nil
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	switch {
	case math.IsInf(f, -1), f < 0:
		return 0
	case math.IsInf(f, 1), f > 1:
		return 1
	default:
		return f
	}
}
