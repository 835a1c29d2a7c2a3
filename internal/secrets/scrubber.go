package secrets

import (
	"sort"
	"strings"
)

// TextScrubber is anything that redacts text, such as the regex scrubber in
// the extraction package.
type TextScrubber interface {
	Scrub(content string) string
}

// Scrubber replaces every Gitleaks finding with a [REDACTED:rule-id] marker,
// then hands the text to an optional next scrubber.
type Scrubber struct {
	detector *Detector
	next     TextScrubber
}

// NewScrubber returns a scrubber backed by detector. next may be nil.
func NewScrubber(detector *Detector, next TextScrubber) *Scrubber {
	return &Scrubber{detector: detector, next: next}
}

// Scrub redacts content.
func (s *Scrubber) Scrub(content string) string {
	if strings.TrimSpace(content) != "" {
		content = replaceFindings(content, s.detector.Detect(content))
	}
	if s.next != nil {
		content = s.next.Scrub(content)
	}
	return content
}

// replaceFindings substitutes each matched secret. Longer matches go first so
// a secret that contains a shorter one is replaced whole.
func replaceFindings(content string, findings []Finding) string {
	if len(findings) == 0 {
		return content
	}
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Match) > len(sorted[j].Match)
	})

	for _, f := range sorted {
		if f.Match == "" {
			continue
		}
		content = strings.ReplaceAll(content, f.Match, "[REDACTED:"+f.RuleID+"]")
	}
	return content
}
