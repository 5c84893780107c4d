// Package session owns the state of one chat conversation: the transcript,
// the generation settings and the turn loop that streams an assistant reply
// into a renderer.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/prompt"
)

var (
	// ErrEmptyMessage is returned when the submitted text is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTurnInProgress is returned when a turn is started while another
	// turn of the same conversation is still running.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrInvalidSettings is returned by UpdateSettings for an unknown model
	// or an out-of-range temperature.
	ErrInvalidSettings = errors.New("invalid generation settings")

	// ErrRenderFailed wraps a renderer error that ended a turn early.
	ErrRenderFailed = errors.New("render failed")
)

// Turn is one role-tagged message of the transcript.
type Turn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Transcript is the ordered, append-only history of a conversation. It never
// holds a system turn. The zero value is an empty transcript.
type Transcript struct {
	turns []Turn
}

// Append adds turn at the end. System turns are rejected.
func (t *Transcript) Append(turn Turn) error {
	if turn.Role != llm.RoleUser && turn.Role != llm.RoleAssistant {
		return fmt.Errorf("%w: %q", prompt.ErrInvalidRole, turn.Role)
	}
	t.turns = append(t.turns, turn)
	return nil
}

// Turns returns a copy of the turns in order.
func (t *Transcript) Turns() []Turn {
	return slices.Clone(t.turns)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Clear removes every turn.
func (t *Transcript) Clear() {
	t.turns = nil
}

// Messages converts the transcript to gateway messages.
func (t *Transcript) Messages() []llm.Message {
	msgs := make([]llm.Message, len(t.turns))
	for i, turn := range t.turns {
		msgs[i] = llm.Message{Role: turn.Role, Content: turn.Content}
	}
	return msgs
}

// Settings are the generation parameters read once per request.
type Settings struct {
	Model        string  `json:"model"`
	Temperature  float32 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
}

// DefaultSettings returns the settings of a fresh conversation.
func DefaultSettings() Settings {
	return Settings{
		Model:        llm.DefaultModel,
		Temperature:  prompt.DefaultTemperature,
		SystemPrompt: prompt.DefaultSystemPrompt,
	}
}

// Validate checks the model and temperature.
func (s Settings) Validate() error {
	if !llm.IsModel(s.Model) {
		return fmt.Errorf("%w: unsupported model %q", ErrInvalidSettings, s.Model)
	}
	if !prompt.ValidTemperature(s.Temperature) {
		return fmt.Errorf("%w: temperature %v outside [%v, %v]",
			ErrInvalidSettings, s.Temperature, prompt.MinTemperature, prompt.MaxTemperature)
	}
	return nil
}

// Cursor is appended to a partial assistant reply while it streams.
const Cursor = "▌"

// EventKind tells a renderer what changed.
type EventKind string

const (
	// EventTurn is a committed user turn.
	EventTurn EventKind = "turn"
	// EventPartial is the assistant reply so far, ending in Cursor.
	EventPartial EventKind = "partial"
	// EventFinal is the complete assistant reply.
	EventFinal EventKind = "final"
	// EventError is a formatted failure message shown in place of a reply.
	EventError EventKind = "error"
)

// Event is one redraw request.
type Event struct {
	Kind EventKind `json:"kind"`
	Role llm.Role  `json:"role,omitempty"`
	Text string    `json:"text"`
}

// Renderer displays events. An error from Render ends the current turn.
type Renderer interface {
	Render(Event) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(Event) error

// Render calls f(e).
func (f RenderFunc) Render(e Event) error {
	return f(e)
}

// GatewayFunc opens a gateway for one turn. It is called after the user turn
// is rendered, so credential fixes are picked up without a restart.
type GatewayFunc func() (llm.Provider, error)
