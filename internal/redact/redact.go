// Package redact masks credentials in text that may be shown to users or
// written to logs.
package redact

import (
	"regexp"
	"strings"
)

// Pattern defines a built-in pattern for secret detection.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Description string
}

var (
	// OpenAI style keys: sk-..., sk-proj-...
	openAIKeyRegex = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{17,}`)

	// Bearer tokens in echoed headers.
	bearerRegex = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{8,}`)

	// Generic assignments: api_key=..., token: ...
	assignmentRegex = regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|token|secret)["\s]*[:=]["\s]*[A-Za-z0-9_\-]{24,}`)
)

// BuiltInPatterns contains all available redaction patterns.
var BuiltInPatterns = map[string]Pattern{
	"openai_key": {
		Name:        "openai_key",
		Regex:       openAIKeyRegex,
		Description: "OpenAI API keys",
	},
	"bearer": {
		Name:        "bearer",
		Regex:       bearerRegex,
		Description: "Bearer tokens",
	},
	"assignment": {
		Name:        "assignment",
		Regex:       assignmentRegex,
		Description: "key=value style secrets",
	},
}

// DefaultPatterns returns the patterns enabled when none are requested.
func DefaultPatterns() []string {
	return []string{"openai_key", "bearer", "assignment"}
}

// GetPatterns returns the patterns matching the given names.
// Unknown pattern names are silently ignored.
func GetPatterns(names []string) []Pattern {
	patterns := make([]Pattern, 0, len(names))
	for _, name := range names {
		if pattern, ok := BuiltInPatterns[name]; ok {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}

// Redactor replaces secrets with a bounded preview of themselves, so an
// operator can still tell which key was involved.
type Redactor struct {
	patterns []Pattern
}

// New creates a Redactor for the named patterns, or the defaults when
// none of the names are known.
func New(names ...string) *Redactor {
	patterns := GetPatterns(names)
	if len(patterns) == 0 {
		patterns = GetPatterns(DefaultPatterns())
	}
	return &Redactor{patterns: patterns}
}

var defaultRedactor = New()

// Secrets redacts text with the default patterns.
func Secrets(text string) string {
	return defaultRedactor.Redact(text)
}

// Redact scans the text for secrets and replaces each one with its preview.
//
//	"Incorrect API key provided: sk-proj-abcdefghijklmnopqrstuvwxyz0123456789"
//	→ "Incorrect API key provided: sk-proj-abcdefg...0123456789"
func (r *Redactor) Redact(text string) string {
	for _, p := range r.patterns {
		text = p.Regex.ReplaceAllStringFunc(text, func(match string) string {
			return Preview(match)
		})
	}
	return text
}

const (
	previewHead = 15
	previewTail = 10
)

// Preview returns the first 15 and last 10 characters of a secret joined by
// "...". Values of 25 characters or fewer are cut to their first 15.
func Preview(s string) string {
	if len(s) > previewHead+previewTail {
		return s[:previewHead] + "..." + s[len(s)-previewTail:]
	}
	if len(s) > previewHead {
		return s[:previewHead]
	}
	return s
}

// Head returns the part of a preview before "...".
func Head(preview string) string {
	head, _, _ := strings.Cut(preview, "...")
	return head
}

// Tail returns the part of a preview after "...", or "" when the preview
// carries no tail.
func Tail(preview string) string {
	_, tail, ok := strings.Cut(preview, "...")
	if !ok {
		return ""
	}
	return tail
}

// Mask is the shorter form used when echoing configuration files:
// first 10 and last 4 characters for values longer than 20.
func Mask(s string) string {
	switch {
	case len(s) > 20:
		return s[:10] + "..." + s[len(s)-4:]
	case len(s) > 10:
		return s[:10] + "..."
	default:
		return s
	}
}
