// Package credential resolves, normalizes and checks the API credential.
//
// Values are looked up in the process environment first and then in a local
// key-value file (".env" by default). The resolver never fails on a missing
// value; callers decide whether absence is fatal. The gateway constructor is
// the enforcement point for [Check].
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/redact"
)

// Accepted credential shape.
const (
	Prefix    = "sk-"
	MinLength = 20
	MaxLength = 300
)

// Validation errors.
var (
	ErrMissing   = errors.New("API key is not set")
	ErrBadPrefix = errors.New("API key must start with 'sk-'")
	ErrTooShort  = errors.New("API key is too short")
	ErrTooLong   = errors.New("API key is too long")
)

// Normalize strips surrounding whitespace and a single matching pair of
// quote characters.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// Validate reports every rule the key breaks. An empty result means the key
// is well-formed.
func Validate(key string) []error {
	if key == "" {
		return []error{ErrMissing}
	}

	var problems []error
	if !strings.HasPrefix(key, Prefix) {
		problems = append(problems, fmt.Errorf("%w (starts with: %s)", ErrBadPrefix, headOf(key)))
	}
	if len(key) < MinLength {
		problems = append(problems, fmt.Errorf("%w (current length: %d characters)", ErrTooShort, len(key)))
	}
	if len(key) > MaxLength {
		problems = append(problems, fmt.Errorf("%w (current length: %d characters)", ErrTooLong, len(key)))
	}
	return problems
}

// Check returns the first validation problem, or nil.
func Check(key string) error {
	if problems := Validate(key); len(problems) > 0 {
		return problems[0]
	}
	return nil
}

func headOf(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	return key
}

// Status summarizes a key for display.
type Status string

const (
	StatusMissing        Status = "missing"
	StatusValid          Status = "valid"
	StatusNeedsAttention Status = "needs attention"
)

// Info is the display-safe description of a key. It never carries the key.
type Info struct {
	Status   Status   `json:"status"`
	Preview  string   `json:"preview,omitempty"`
	Length   int      `json:"length"`
	Problems []string `json:"problems,omitempty"`
}

// Describe builds the display-safe description of key.
func Describe(key string) Info {
	if key == "" {
		return Info{Status: StatusMissing, Problems: []string{ErrMissing.Error()}}
	}

	info := Info{
		Status:  StatusValid,
		Preview: redact.Preview(key),
		Length:  len(key),
	}
	for _, p := range Validate(key) {
		info.Status = StatusNeedsAttention
		info.Problems = append(info.Problems, p.Error())
	}
	return info
}
