package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/llm"
)

// DefaultSystemPrompt is the instruction a new or reset conversation starts with.
const DefaultSystemPrompt = "You are a kind and helpful AI assistant. " +
	"Please give accurate and useful answers to the user's questions."

// DefaultTemperature is the sampling temperature of a new conversation.
const DefaultTemperature = llm.DefaultTemperature

// Temperature bounds accepted by the gateway.
const (
	MinTemperature = float32(0)
	MaxTemperature = float32(1)
)

var (
	// ErrSystemInHistory is returned by [Build] when the transcript carries a
	// system message.
	ErrSystemInHistory = errors.New("prompt: transcript contains a system message")

	// ErrInvalidRole is returned by [Build] for roles other than user and assistant.
	ErrInvalidRole = errors.New("prompt: invalid message role")
)

// Build returns the system instruction followed by history. A blank
// instruction is replaced by [DefaultSystemPrompt]. The history slice is not
// modified.
func Build(system string, history []llm.Message) ([]llm.Message, error) {
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})

	for i, msg := range history {
		switch msg.Role {
		case llm.RoleUser, llm.RoleAssistant:
			messages = append(messages, msg)
		case llm.RoleSystem:
			return nil, fmt.Errorf("%w at position %d", ErrSystemInHistory, i)
		default:
			return nil, fmt.Errorf("%w: %q at position %d", ErrInvalidRole, msg.Role, i)
		}
	}

	return messages, nil
}

// ResolveModel returns the first candidate naming a supported model, or
// llm.DefaultModel when none does. Candidates are trimmed before the check.
func ResolveModel(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); llm.IsModel(c) {
			return c
		}
	}
	return llm.DefaultModel
}

// ValidTemperature reports whether t is within the accepted range.
func ValidTemperature(t float32) bool {
	return t >= MinTemperature && t <= MaxTemperature
}
