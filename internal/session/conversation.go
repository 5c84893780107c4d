package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/prompt"
)

// Conversation is the state of one chat session. Only one turn runs at a
// time; a second one fails with ErrTurnInProgress.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	logger        *slog.Logger
	defaultSystem string

	mu         sync.Mutex
	transcript Transcript
	settings   Settings
	busy       bool
	epoch      uint64 // bumped by reset; a running turn commits only into its own epoch
	lastUsed   time.Time
}

// NewConversation creates an empty conversation with the given defaults.
// The default system instruction is what ResetConversation restores.
func NewConversation(id string, defaults Settings, logger *slog.Logger) (*Conversation, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(defaults.SystemPrompt) == "" {
		defaults.SystemPrompt = prompt.DefaultSystemPrompt
	}

	now := time.Now()
	return &Conversation{
		ID:            id,
		CreatedAt:     now,
		logger:        logger.With("conversation", id),
		defaultSystem: defaults.SystemPrompt,
		settings:      defaults,
		lastUsed:      now,
	}, nil
}

// Transcript returns a copy of the turns so far.
func (c *Conversation) Transcript() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Turns()
}

// Settings returns the current generation settings.
func (c *Conversation) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// DefaultSystemPrompt returns the instruction restored on reset.
func (c *Conversation) DefaultSystemPrompt() string {
	return c.defaultSystem
}

// Busy reports whether a turn is running.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// LastUsed returns when the conversation was last looked up or finished a
// turn.
func (c *Conversation) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *Conversation) touch(t time.Time) {
	c.mu.Lock()
	c.lastUsed = t
	c.mu.Unlock()
}

// UpdateSettings replaces the settings. Invalid settings are rejected and
// leave the current ones unchanged. A running turn keeps the settings it
// started with.
func (c *Conversation) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	c.logger.Debug("settings updated", "model", s.Model, "temperature", s.Temperature)
	return nil
}

// ResetConversation clears the transcript and restores the default system
// instruction. Model and temperature are kept. A turn still running when
// the reset happens does not commit its reply.
func (c *Conversation) ResetConversation() {
	c.mu.Lock()
	c.transcript.Clear()
	c.settings.SystemPrompt = c.defaultSystem
	c.epoch++
	c.mu.Unlock()

	c.logger.Info("conversation reset")
}

// SubmitUserTurn appends a user turn and renders it before any gateway work.
func (c *Conversation) SubmitUserTurn(text string, r Renderer) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	return c.submit(text, r)
}

// RunAssistantTurn streams a reply to the current transcript. Each fragment
// renders the reply so far with a trailing Cursor; completion renders the
// final text and commits it as an assistant turn. Any failure is rendered as
// an EventError with the formatted message and leaves the transcript as it
// was. The returned error is the failure itself.
func (c *Conversation) RunAssistantTurn(ctx context.Context, open GatewayFunc, r Renderer) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	return c.run(ctx, open, r)
}

// Send submits text and runs the assistant turn as one unit, so no other
// turn can interleave between the two.
func (c *Conversation) Send(ctx context.Context, text string, open GatewayFunc, r Renderer) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.submit(text, r); err != nil {
		return err
	}
	return c.run(ctx, open, r)
}

func (c *Conversation) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	c.busy = true
	return nil
}

func (c *Conversation) end() {
	c.mu.Lock()
	c.busy = false
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *Conversation) submit(text string, r Renderer) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	turn := Turn{Role: llm.RoleUser, Content: text}
	c.mu.Lock()
	err := c.transcript.Append(turn)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := render(r, Event{Kind: EventTurn, Role: turn.Role, Text: turn.Content}); err != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return nil
}

func (c *Conversation) run(ctx context.Context, open GatewayFunc, r Renderer) error {
	c.mu.Lock()
	settings := c.settings
	history := c.transcript.Messages()
	epoch := c.epoch
	c.mu.Unlock()

	gw, err := open()
	if err != nil {
		return c.fail(r, err)
	}

	messages, err := prompt.Build(settings.SystemPrompt, history)
	if err != nil {
		return c.fail(r, err)
	}

	start := time.Now()
	c.logger.Debug("assistant turn started", "model", settings.Model, "messages", len(messages))

	var buf strings.Builder
	opts := &llm.ChatOptions{Model: settings.Model, Temperature: settings.Temperature}
	for fragment, err := range gw.ChatStream(ctx, messages, opts) {
		if err != nil {
			return c.fail(r, err)
		}
		buf.WriteString(fragment)
		if err := render(r, Event{Kind: EventPartial, Role: llm.RoleAssistant, Text: buf.String() + Cursor}); err != nil {
			c.logger.Warn("renderer failed, abandoning stream", "error", err)
			return fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
	}

	reply := buf.String()
	renderErr := render(r, Event{Kind: EventFinal, Role: llm.RoleAssistant, Text: reply})

	c.mu.Lock()
	committed := c.epoch == epoch
	if committed {
		err = c.transcript.Append(Turn{Role: llm.RoleAssistant, Content: reply})
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.logger.Info("assistant turn completed",
		"model", settings.Model,
		"chars", len(reply),
		"committed", committed,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if renderErr != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, renderErr)
	}
	return nil
}

// fail renders the formatted failure and returns err unchanged.
func (c *Conversation) fail(r Renderer, err error) error {
	c.logger.Warn("assistant turn failed", "category", llm.CategoryOf(err).String())

	if rerr := render(r, Event{Kind: EventError, Text: llm.FormatError(err)}); rerr != nil {
		c.logger.Debug("failed to render error", "error", rerr)
	}
	return err
}

func render(r Renderer, e Event) error {
	if r == nil {
		return nil
	}
	return r.Render(e)
}
