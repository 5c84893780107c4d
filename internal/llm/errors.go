package llm

import "errors"

// Category is the closed set of failure kinds a gateway call can end in.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryConfiguration
	CategoryRateLimited
	CategoryConnectionFailed
	CategoryTimedOut
	CategoryAuthenticationFailed
	CategoryUpstreamAPI
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryConnectionFailed:
		return "connection_failed"
	case CategoryTimedOut:
		return "timed_out"
	case CategoryAuthenticationFailed:
		return "authentication_failed"
	case CategoryUpstreamAPI:
		return "upstream_api"
	default:
		return "unknown"
	}
}

// Category sentinels. Every *Error matches exactly one of them with errors.Is.
var (
	ErrConfiguration        = errors.New("gateway configuration error")
	ErrRateLimited          = errors.New("rate limited")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrTimedOut             = errors.New("request timed out")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUpstreamAPI          = errors.New("upstream API error")
	ErrUnknownFailure       = errors.New("unknown failure")
)

func (c Category) sentinel() error {
	switch c {
	case CategoryConfiguration:
		return ErrConfiguration
	case CategoryRateLimited:
		return ErrRateLimited
	case CategoryConnectionFailed:
		return ErrConnectionFailed
	case CategoryTimedOut:
		return ErrTimedOut
	case CategoryAuthenticationFailed:
		return ErrAuthenticationFailed
	case CategoryUpstreamAPI:
		return ErrUpstreamAPI
	default:
		return ErrUnknownFailure
	}
}

// Error is a classified gateway failure. Its message is the user-facing text
// and always starts with a category marker. No field holds a full credential.
type Error struct {
	Category Category

	// Detail is the redacted upstream or transport message.
	Detail string

	// Upstream diagnostic fields, empty when not reported.
	Type   string
	Code   string
	Param  string
	Status int

	// KeyHint is a preview of a credential fragment echoed back by upstream.
	KeyHint string

	msg string
	err error
}

func (e *Error) Error() string {
	return e.msg
}

// Unwrap exposes the category sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.err == nil {
		return []error{e.Category.sentinel()}
	}
	return []error{e.Category.sentinel(), e.err}
}

// CategoryOf returns the category of err, or CategoryUnknown when err is not
// a classified gateway error.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryUnknown
}
