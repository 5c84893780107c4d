package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/redact"
)

// Category markers. A message carrying one is already formatted.
const (
	MarkerFailure    = "❌"
	MarkerRateLimit  = "⏱️"
	MarkerConnection = "🌐"
	MarkerTimeout    = "⏰"
)

var markers = []string{MarkerFailure, MarkerRateLimit, MarkerConnection, MarkerTimeout}

// HasMarker reports whether msg already carries a category marker.
func HasMarker(msg string) bool {
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// FormatError turns any error into the message shown to the user.
// Messages that already carry a marker are returned unchanged, so formatting
// is idempotent. Otherwise the text is scanned for hints of the failure kind.
// Credentials in the text are redacted.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	msg := redact.Secrets(err.Error())
	if HasMarker(msg) {
		return msg
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "incorrect api key"):
		return fmt.Sprintf("%s The OpenAI API key is not valid.\n\nDetails: %s\n\n💡 Check OPENAI_API_KEY in your .env file.", MarkerFailure, msg)

	case strings.Contains(lower, "authentication") || strings.Contains(lower, "unauthorized"):
		return fmt.Sprintf("%s Authentication failed.\n\nDetails: %s\n\n💡 Make sure OPENAI_API_KEY in your .env file is correct (no spaces or quotes).", MarkerFailure, msg)

	case strings.Contains(lower, "rate limit") || strings.Contains(msg, "429"):
		return fmt.Sprintf("%s The API rate limit was reached.\n\nDetails: %s", MarkerRateLimit, msg)

	case strings.Contains(lower, "network") || strings.Contains(lower, "connection"):
		return fmt.Sprintf("%s A network connection error occurred.\n\nDetails: %s", MarkerConnection, msg)

	case strings.Contains(lower, "timeout"):
		return fmt.Sprintf("%s The request timed out.\n\nDetails: %s", MarkerTimeout, msg)
	}

	return fmt.Sprintf("%s An error occurred: %s\n\nDetails: %s", MarkerFailure, kindOf(err), msg)
}

// kindOf names the innermost error type, e.g. "url.Error".
func kindOf(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
