// Package config provides configuration types and helpers for streamchat.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config holds the application-wide configuration.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Verbose    bool             `mapstructure:"verbose"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Credential CredentialConfig `mapstructure:"credential"`
}

// ServerConfig holds settings for the web surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // e.g., ":8501"

	// SessionTTL is how long an idle browser conversation is kept.
	// Zero keeps conversations until the process exits.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// LLMConfig holds the generation defaults and upstream settings.
type LLMConfig struct {
	// Model is the default model for new conversations.
	// OPENAI_MODEL overrides it when set to one of the supported models.
	Model string `mapstructure:"model"`

	// Temperature is the default sampling temperature, 0.0 to 1.0.
	Temperature float32 `mapstructure:"temperature"`

	// SystemPrompt replaces the built-in default system instruction when non-empty.
	SystemPrompt string `mapstructure:"system_prompt"`

	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	APIKeyEnv string `mapstructure:"api_key_env"` // name of the credential variable
	BaseURL   string `mapstructure:"base_url"`    // Optional: for compatible endpoints
	OrgID     string `mapstructure:"org_id"`      // Optional: organization ID
}

// CredentialConfig controls where the credential is looked up.
type CredentialConfig struct {
	EnvFile string `mapstructure:"env_file"` // local key-value fallback, e.g. ".env"
	Watch   bool   `mapstructure:"watch"`    // reload EnvFile when it changes
}

// Default values shared by the root command and tests.
const (
	DefaultAddr      = ":8501"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
	DefaultModelEnv  = "OPENAI_MODEL"
	DefaultEnvFile   = ".env"

	DefaultSessionTTL = time.Hour
)

// KeyEnv returns the credential variable name, falling back to OPENAI_API_KEY.
func (c LLMConfig) KeyEnv() string {
	if c.OpenAI.APIKeyEnv == "" {
		return DefaultAPIKeyEnv
	}
	return c.OpenAI.APIKeyEnv
}

// LogLevel represents a standard log severity level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelUnknown
)

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Slog maps the level onto slog. Unknown levels log at info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a string to a LogLevel.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dbg":
		return LevelDebug
	case "info", "inf":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "err":
		return LevelError
	default:
		return LevelUnknown
	}
}
