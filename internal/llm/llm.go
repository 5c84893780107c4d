package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"

	"github.com/bimmerbailey/streamchat/internal/config"
)

// Provider defines the interface for LLM interactions.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Chat sends messages and returns a complete response.
	// The context can be used to cancel the request.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// ChatStream returns a lazy sequence of text fragments. The request is
	// issued when iteration starts. At most one error is yielded and it ends
	// the sequence. Stopping the range loop early closes the upstream stream.
	// The sequence may be consumed only once.
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) iter.Seq2[string, error]

	// Heartbeat checks if the provider is reachable and the credential is accepted.
	Heartbeat(ctx context.Context) error

	// ModelAvailable checks if a specific model can be used with the credential.
	ModelAvailable(ctx context.Context, model string) (bool, error)
}

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// ChatOptions configures chat behavior.
// A nil opts uses DefaultModel and DefaultTemperature.
type ChatOptions struct {
	// Model must be one of Models(). Empty means DefaultModel.
	Model string

	// Temperature controls randomness, 0.0 to 1.0.
	Temperature float32

	// MaxTokens limits the response length (0 = provider default)
	MaxTokens int
}

// Response represents a complete LLM response.
type Response struct {
	// Content is the generated text
	Content string

	// Model is the name of the model that generated the response
	Model string

	// TokensPrompt is the number of tokens in the prompt
	TokensPrompt int

	// TokensTotal is the total number of tokens (prompt + completion)
	TokensTotal int
}

// Generation defaults.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = float32(0.7)
)

var models = []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}

// Models returns the supported model identifiers, default first.
func Models() []string {
	return slices.Clone(models)
}

// IsModel reports whether name is a supported model.
func IsModel(name string) bool {
	return slices.Contains(models, name)
}

// Common errors returned by the gateway outside the failure taxonomy.
var (
	// ErrInvalidRequest indicates the messages or options break the input contract.
	ErrInvalidRequest = errors.New("invalid chat request")

	// ErrInvalidResponse indicates the provider returned an invalid response
	ErrInvalidResponse = errors.New("provider returned invalid response")

	// ErrStreamConsumed indicates a stream sequence was ranged over twice.
	ErrStreamConsumed = errors.New("stream was already consumed")
)

// NewProvider creates the OpenAI gateway from the application configuration
// and an already resolved credential.
func NewProvider(cfg *config.Config, apiKey string, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	gw, err := NewGateway(GatewayConfig{
		APIKey:  apiKey,
		KeyEnv:  cfg.LLM.KeyEnv(),
		BaseURL: cfg.LLM.OpenAI.BaseURL,
		OrgID:   cfg.LLM.OpenAI.OrgID,
	}, logger)
	if err != nil {
		return nil, err
	}
	return gw, nil
}
