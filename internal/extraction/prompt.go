package extraction

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to a body that was cut to fit MaxBodyChars.
const TruncationMarker = "[... content truncated ...]"

const promptInstructions = `You are an expert assistant that extracts actionable tasks from business communications.

TASK:
Extract specific, actionable tasks that someone needs to complete. Focus on:
- Clear actions with verbs (complete, send, review, schedule, etc.)
- Specific deliverables or deadlines mentioned
- Tasks assigned to people (names or "you", "I", "we")

RULES:
- Only extract concrete, actionable tasks
- Ignore vague statements like "let's discuss" or "keep in touch"
- Include the responsible person if mentioned
- Resolve relative deadlines against the reference date
- Rate your confidence from 0.0 to 1.0
- If there are no tasks, return an empty list

OUTPUT FORMAT:
Respond with JSON only, no prose and no code fences, using exactly this schema:
{"action_items": [{"title": "string", "description": "string", "assignee": "string or null", "due_date": "YYYY-MM-DD or null", "priority": "low|medium|high|urgent", "confidence": 0.0, "context": "string"}]}`

// BuildPrompt renders the extraction prompt for one document. It never fails;
// an empty body still yields a complete prompt.
func BuildPrompt(doc SourceDocument, opts Options) string {
	body, _ := truncateBody(doc.Body, opts.MaxBodyChars)

	var b strings.Builder
	b.Grow(len(promptInstructions) + len(body) + 256)
	b.WriteString(promptInstructions)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString("Source type: ")
	b.WriteString(doc.SourceType.Label())
	b.WriteString("\nSender: ")
	b.WriteString(orUnknown(doc.Sender))
	b.WriteString("\nTimestamp: ")
	if doc.ReceivedAt.IsZero() {
		b.WriteString("unknown")
	} else {
		b.WriteString(doc.ReceivedAt.Format("2006-01-02T15:04:05Z07:00"))
		b.WriteString("\nReference date: ")
		b.WriteString(doc.ReceivedAt.Format("2006-01-02 (Monday)"))
	}
	if s := strings.TrimSpace(doc.Subject); s != "" {
		b.WriteString("\nSubject: ")
		b.WriteString(s)
	}
	b.WriteString("\n\nCONTENT:\n")
	b.WriteString(body)
	b.WriteString("\n\nExtract action items (JSON only):")
	return b.String()
}

// truncateBody keeps the first max runes of body and appends the marker.
// max <= 0 disables truncation.
func truncateBody(body string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(body) <= max {
		return body, false
	}
	n := 0
	for i := range body {
		if n == max {
			return strings.TrimRightFunc(body[:i], isSpace) + "\n" + TruncationMarker, true
		}
		n++
	}
	return body, false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
