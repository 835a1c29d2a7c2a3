package extraction

import "regexp"

// Scrubber removes sensitive values from text before it leaves the process.
type Scrubber interface {
	Scrub(content string) string
}

type scrubPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// PatternScrubber redacts credentials that commonly appear in forwarded
// emails and chat logs. Order matters: specific patterns run first.
type PatternScrubber struct {
	patterns []scrubPattern
}

// NewPatternScrubber returns a scrubber with the built-in patterns.
func NewPatternScrubber() *PatternScrubber {
	return &PatternScrubber{patterns: []scrubPattern{
		{
			regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|GITLAB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`),
			"$1=[REDACTED:ENV_SECRET]",
		},
		{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
			"[REDACTED:ANTHROPIC_KEY]",
		},
		{
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			"[REDACTED:OPENAI_KEY]",
		},
		{
			regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
			"$1=[REDACTED:API_KEY]",
		},
		{
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
			"[REDACTED:BEARER_TOKEN]",
		},
		{
			regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
			"$1=[REDACTED:PASSWORD]",
		},
		{
			regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
			"[REDACTED:PRIVATE_KEY]",
		},
	}}
}

// Scrub returns content with every match replaced.
func (s *PatternScrubber) Scrub(content string) string {
	for _, p := range s.patterns {
		content = p.regex.ReplaceAllString(content, p.replacement)
	}
	return content
}
