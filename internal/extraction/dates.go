package extraction

import (
	"regexp"
	"strings"
	"time"
)

var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
}

var (
	isoDatePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	usDatePattern  = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`)
)

// parseDueDate turns a model supplied deadline into a calendar date at
// midnight UTC. Unparsable or impossible dates report false.
func parseDueDate(v any, ref time.Time) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" || isNullWord(s) {
		return time.Time{}, false
	}

	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}

	// Dates embedded in prose, e.g. "by 2024-01-15".
	if m := isoDatePattern.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return dateOnly(t), true
		}
	}
	if m := usDatePattern.FindString(s); m != "" {
		if t, err := time.Parse("1/2/2006", m); err == nil {
			return dateOnly(t), true
		}
	}

	return relativeDate(strings.ToLower(s), ref)
}

func relativeDate(s string, ref time.Time) (time.Time, bool) {
	if ref.IsZero() {
		return time.Time{}, false
	}
	base := dateOnly(ref)
	switch {
	case strings.Contains(s, "today"), strings.Contains(s, "end of day"), s == "eod":
		return base, true
	case strings.Contains(s, "tomorrow"):
		return base.AddDate(0, 0, 1), true
	case strings.Contains(s, "next week"):
		return base.AddDate(0, 0, 7), true
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
