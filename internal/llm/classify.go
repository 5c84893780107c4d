package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"

	"github.com/bimmerbailey/streamchat/internal/redact"
	openai "github.com/sashabaranov/go-openai"
)

// upstreamFields are the diagnostic fields an upstream failure can carry.
type upstreamFields struct {
	Message string
	Type    string
	Code    string
	Param   string
	Status  int
}

// echoedKeyRegex finds a credential echoed in an upstream message. Upstream
// masks part of the key with '*', so the match stops there.
var echoedKeyRegex = regexp.MustCompile(`sk-[^\s\*]+`)

// classify maps any failure of an upstream call to a *Error. Structured
// fields on the error are used first; the text scan in FormatError is the
// last resort for errors that carry none.
func (g *Gateway) classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &reqErr):
		return g.classifyUpstream(fieldsFromRequestError(reqErr), err)

	case errors.As(err, &apiErr):
		return g.classifyUpstream(fieldsFromAPIError(apiErr), err)

	case errors.Is(err, context.Canceled):
		return newUnknown(err)

	case isTimeout(err):
		detail := redact.Secrets(err.Error())
		return &Error{
			Category: CategoryTimedOut,
			Detail:   detail,
			msg:      fmt.Sprintf("%s Request timed out: %s", MarkerTimeout, detail),
			err:      err,
		}

	case isConnection(err):
		detail := redact.Secrets(err.Error())
		return &Error{
			Category: CategoryConnectionFailed,
			Detail:   detail,
			msg:      fmt.Sprintf("%s Network connection error: %s", MarkerConnection, detail),
			err:      err,
		}
	}

	return newUnknown(err)
}

func newUnknown(err error) *Error {
	return &Error{
		Category: CategoryUnknown,
		Detail:   redact.Secrets(err.Error()),
		msg:      FormatError(err),
		err:      err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnection(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &urlErr)
}

func fieldsFromAPIError(e *openai.APIError) upstreamFields {
	f := upstreamFields{
		Message: e.Message,
		Type:    e.Type,
		Status:  e.HTTPStatusCode,
	}
	switch code := e.Code.(type) {
	case nil:
	case string:
		f.Code = code
	default:
		f.Code = fmt.Sprint(code)
	}
	if e.Param != nil {
		f.Param = *e.Param
	}
	return f
}

func fieldsFromRequestError(e *openai.RequestError) upstreamFields {
	f := upstreamFields{Status: e.HTTPStatusCode}

	var apiErr *openai.APIError
	switch {
	case errors.As(e.Err, &apiErr):
		f = fieldsFromAPIError(apiErr)
		f.Status = e.HTTPStatusCode
	case e.Err != nil:
		f.Message = e.Err.Error()
	default:
		f.Message = http.StatusText(e.HTTPStatusCode)
	}
	return f
}

func isRateLimit(f upstreamFields) bool {
	if f.Status == http.StatusTooManyRequests {
		return true
	}
	switch f.Code {
	case "rate_limit_exceeded", "insufficient_quota":
		return true
	}
	return f.Type == "insufficient_quota"
}

func isAuthentication(f upstreamFields) bool {
	if f.Code == "invalid_api_key" || f.Status == http.StatusUnauthorized {
		return true
	}
	lower := strings.ToLower(f.Message)
	return strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "authentication")
}

func (g *Gateway) classifyUpstream(f upstreamFields, cause error) *Error {
	detail := redact.Secrets(f.Message)
	e := &Error{
		Detail: detail,
		Type:   f.Type,
		Code:   f.Code,
		Param:  f.Param,
		Status: f.Status,
		err:    cause,
	}

	switch {
	case isRateLimit(f):
		e.Category = CategoryRateLimited
		e.msg = fmt.Sprintf("%s API rate limit exceeded: %s", MarkerRateLimit, detail)

	case isAuthentication(f):
		e.Category = CategoryAuthenticationFailed
		if strings.Contains(f.Message, "Incorrect API key provided:") {
			if m := echoedKeyRegex.FindString(f.Message); m != "" {
				e.KeyHint = redact.Preview(m)
			}
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s API key authentication failed\n\n", MarkerFailure)
		b.WriteString(g.infoBlock(e))
		if e.KeyHint != "" {
			fmt.Fprintf(&b, "\n⚠️ Key mentioned in the error message: %s", e.KeyHint)
		}
		b.WriteString("\n\n")
		b.WriteString(g.checklist())
		e.msg = b.String()

	default:
		e.Category = CategoryUpstreamAPI
		e.msg = fmt.Sprintf("%s OpenAI API error\n\n%s", MarkerFailure, g.infoBlock(e))
	}
	return e
}

// infoBlock lists the upstream fields and the preview of the key in use.
func (g *Gateway) infoBlock(e *Error) string {
	typ := e.Type
	if typ == "" {
		typ = "APIError"
	}
	code := e.Code
	if code == "" {
		code = "Unknown"
	}

	lines := []string{
		"Error type: " + typ,
		"Error code: " + code,
	}
	if e.Param != "" {
		lines = append(lines, "Parameter: "+e.Param)
	}
	lines = append(lines, "Details: "+e.Detail)

	if g.keyPreview != "" {
		lines = append(lines,
			"\n🔍 API key in use:",
			"   - starts with: "+redact.Head(g.keyPreview),
			"   - ends with: ..."+redact.Tail(g.keyPreview),
			fmt.Sprintf("   - length: %d characters", g.keyLength),
		)
	}
	return strings.Join(lines, "\n")
}

func (g *Gateway) checklist() string {
	return "💡 How to fix:\n" +
		"   1. Check " + g.keyEnv + " in your .env file\n" +
		"   2. Make sure the whole API key was copied, not just part of it\n" +
		"   3. Make sure there are no spaces or quotes around it\n" +
		"   4. Generate a new key at https://platform.openai.com/account/api-keys\n" +
		"   5. Restart the app"
}
