// Package llm provides the model gateway used by every chat surface.
//
// # Overview
//
// The Provider interface hides the upstream chat completions API behind four
// calls: Chat, ChatStream, Heartbeat and ModelAvailable. The only
// implementation is Gateway, built on github.com/sashabaranov/go-openai.
//
// # Usage
//
//	gw, err := llm.NewGateway(llm.GatewayConfig{APIKey: key}, logger)
//	if err != nil {
//	    // err is a *llm.Error with CategoryConfiguration
//	    fmt.Println(llm.FormatError(err))
//	    return
//	}
//
//	messages := []llm.Message{
//	    {Role: llm.RoleSystem, Content: "You are a kind and helpful AI assistant."},
//	    {Role: llm.RoleUser, Content: "2+2?"},
//	}
//
//	for fragment, err := range gw.ChatStream(ctx, messages, &llm.ChatOptions{
//	    Model:       "gpt-4o-mini",
//	    Temperature: 0.7,
//	}) {
//	    if err != nil {
//	        fmt.Println(llm.FormatError(err))
//	        break
//	    }
//	    fmt.Print(fragment)
//	}
//
// # Input Contract
//
// Messages must be non-empty and start with the only system message. The
// model must be one of Models() and the temperature within [0, 1].
// Violations return ErrInvalidRequest before any network call.
//
// # Error Handling
//
// Every upstream failure is returned as a *Error whose Category is one of:
//
//   - CategoryConfiguration: missing or malformed credential (constructor only)
//   - CategoryRateLimited: HTTP 429, rate_limit_exceeded, insufficient_quota
//   - CategoryConnectionFailed: dial, DNS and other transport failures
//   - CategoryTimedOut: deadline exceeded
//   - CategoryAuthenticationFailed: invalid_api_key or HTTP 401
//   - CategoryUpstreamAPI: any other structured API error
//   - CategoryUnknown: anything else
//
// Match them with errors.Is against the sentinels:
//
//	if errors.Is(err, llm.ErrAuthenticationFailed) {
//	    // ask the user to fix the key
//	}
//
// Error() is the user-facing message and starts with a category marker.
// Credentials in upstream text are replaced by bounded previews. FormatError
// leaves marked messages unchanged and classifies the rest by their text.
//
// No call is retried.
package llm
