package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/bimmerbailey/streamchat/internal/config"
	"github.com/bimmerbailey/streamchat/internal/credential"
	"github.com/bimmerbailey/streamchat/internal/redact"
	openai "github.com/sashabaranov/go-openai"
)

// GatewayConfig holds the settings for an OpenAI gateway.
type GatewayConfig struct {
	// APIKey is the resolved credential.
	APIKey string

	// KeyEnv names the variable the credential came from, for messages only.
	KeyEnv string

	// BaseURL overrides the API endpoint, e.g. for compatible servers.
	BaseURL string

	// OrgID is the optional organization header.
	OrgID string
}

// Gateway implements Provider on top of the OpenAI chat completions API.
type Gateway struct {
	client     *openai.Client
	keyEnv     string
	keyPreview string
	keyLength  int
	logger     *slog.Logger
}

// NewGateway validates the credential and creates a gateway. A missing or
// malformed credential yields a *Error of CategoryConfiguration and no
// network call is made.
func NewGateway(cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	keyEnv := cfg.KeyEnv
	if keyEnv == "" {
		keyEnv = config.DefaultAPIKeyEnv
	}

	key := credential.Normalize(cfg.APIKey)
	if err := credential.Check(key); err != nil {
		return nil, &Error{
			Category: CategoryConfiguration,
			Detail:   err.Error(),
			msg: fmt.Sprintf("%s Configuration error: %s: %v\n\n💡 Set %s in the environment or in the .env file, then try again.",
				MarkerFailure, keyEnv, err, keyEnv),
			err: err,
		}
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientCfg.OrgID = cfg.OrgID
	}

	g := &Gateway{
		client:     openai.NewClientWithConfig(clientCfg),
		keyEnv:     keyEnv,
		keyPreview: redact.Preview(key),
		keyLength:  len(key),
		logger:     logger,
	}

	logger.Debug("initialized openai gateway",
		"base_url", clientCfg.BaseURL,
		"key_preview", g.keyPreview,
		"key_length", g.keyLength,
	)

	return g, nil
}

// KeyPreview returns the bounded preview of the credential in use.
func (g *Gateway) KeyPreview() string {
	return g.keyPreview
}

// KeyLength returns the length of the credential in use.
func (g *Gateway) KeyLength() int {
	return g.keyLength
}

// Chat sends messages and returns the complete response.
func (g *Gateway) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	req, err := buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("chat completion request", "model", req.Model, "messages", len(req.Messages), "stream", false)

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, g.fail(err)
	}
	if len(resp.Choices) == 0 {
		return nil, g.fail(fmt.Errorf("%w: no choices", ErrInvalidResponse))
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		TokensPrompt: resp.Usage.PromptTokens,
		TokensTotal:  resp.Usage.TotalTokens,
	}, nil
}

// ChatStream returns the response as a lazy sequence of non-empty fragments.
func (g *Gateway) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) iter.Seq2[string, error] {
	var used atomic.Bool

	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}

		req, err := buildRequest(messages, opts)
		if err != nil {
			yield("", err)
			return
		}
		req.Stream = true

		g.logger.Debug("chat completion request", "model", req.Model, "messages", len(req.Messages), "stream", true)

		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", g.fail(err))
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", g.fail(err))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			if !yield(content, nil) {
				g.logger.Debug("stream abandoned by consumer")
				return
			}
		}
	}
}

// Heartbeat lists models, which needs a reachable endpoint and an accepted key.
func (g *Gateway) Heartbeat(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return g.fail(err)
	}
	return nil
}

// ModelAvailable reports whether model is supported and visible to the key.
func (g *Gateway) ModelAvailable(ctx context.Context, model string) (bool, error) {
	if !IsModel(model) {
		return false, nil
	}

	list, err := g.client.ListModels(ctx)
	if err != nil {
		return false, g.fail(err)
	}
	for _, m := range list.Models {
		if m.ID == model {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gateway) fail(err error) *Error {
	e := g.classify(err)
	g.logger.Warn("openai request failed",
		"category", e.Category.String(),
		"status", e.Status,
		"code", e.Code,
	)
	return e
}

// buildRequest checks the input contract and converts messages. The first
// message must be the only system message.
func buildRequest(messages []Message, opts *ChatOptions) (openai.ChatCompletionRequest, error) {
	var req openai.ChatCompletionRequest

	if len(messages) == 0 {
		return req, fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}
	if messages[0].Role != RoleSystem {
		return req, fmt.Errorf("%w: first message must have role %q", ErrInvalidRequest, RoleSystem)
	}

	model := DefaultModel
	temperature := DefaultTemperature
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		temperature = opts.Temperature
		req.MaxTokens = opts.MaxTokens
	}
	if !IsModel(model) {
		return req, fmt.Errorf("%w: unsupported model %q", ErrInvalidRequest, model)
	}
	if temperature < 0 || temperature > 1 || math.IsNaN(float64(temperature)) {
		return req, fmt.Errorf("%w: temperature %v outside [0, 1]", ErrInvalidRequest, temperature)
	}

	req.Model = model
	req.Temperature = temperature
	if temperature == 0 {
		// The client drops a zero temperature; send the smallest positive value.
		req.Temperature = math.SmallestNonzeroFloat32
	}

	req.Messages = make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		if i > 0 && msg.Role == RoleSystem {
			return req, fmt.Errorf("%w: system message at position %d", ErrInvalidRequest, i)
		}
		if msg.Role != RoleSystem && msg.Role != RoleUser && msg.Role != RoleAssistant {
			return req, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, msg.Role)
		}
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	return req, nil
}
