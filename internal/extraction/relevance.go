package extraction

import "strings"

// DefaultRelevanceMinWords is the word count above which a document with no
// action keyword is skipped.
const DefaultRelevanceMinWords = 50

var actionKeywords = []string{
	"action required", "follow up", "follow-up", "deadline", "due date",
	"please", "need to", "needs to", "should", "must", "will you",
	"can you", "could you", "todo", "to do", "task", "assignment",
	"complete", "deliver", "prepare", "schedule", "meeting", "review",
	"send", "submit", "finish", "update", "by eod", "asap",
}

// RelevanceFilter skips long documents that contain no action keyword, so
// newsletters and notifications never reach the model.
type RelevanceFilter struct {
	MinWords int
}

// NewRelevanceFilter returns a filter; minWords <= 0 uses the default.
func NewRelevanceFilter(minWords int) *RelevanceFilter {
	if minWords <= 0 {
		minWords = DefaultRelevanceMinWords
	}
	return &RelevanceFilter{MinWords: minWords}
}

// Relevant reports whether the document should be sent for extraction.
// Blank documents are never relevant.
func (f *RelevanceFilter) Relevant(doc SourceDocument) bool {
	text := strings.TrimSpace(doc.Subject + "\n" + doc.Body)
	if text == "" {
		return false
	}
	if KeywordCount(text) > 0 {
		return true
	}
	return len(strings.Fields(text)) <= f.MinWords
}

// KeywordCount returns how many distinct action keywords occur in text.
func KeywordCount(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
