package llm

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/bimmerbailey/streamchat/internal/config"
	"github.com/bimmerbailey/streamchat/internal/credential"
)

const testKey = "sk-proj-abcdefghijklmnopqrstuvwxyz0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{Model: DefaultModel}}

	provider, err := NewProvider(cfg, testKey, testLogger())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider but got nil")
	}
}

// TestNewProviderNilConfig verifies that nil config is rejected.
func TestNewProviderNilConfig(t *testing.T) {
	if _, err := NewProvider(nil, testKey, testLogger()); err == nil {
		t.Error("NewProvider() should reject nil config")
	}
}

// TestNewProviderNilLogger verifies that nil logger is rejected.
func TestNewProviderNilLogger(t *testing.T) {
	if _, err := NewProvider(&config.Config{}, testKey, nil); err == nil {
		t.Error("NewProvider() should reject nil logger")
	}
}

func TestNewProvider_UsesConfiguredKeyEnv(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{OpenAI: config.OpenAIConfig{APIKeyEnv: "MY_KEY"}}}

	_, err := NewProvider(cfg, "", testLogger())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want %v", err, ErrConfiguration)
	}
	if !strings.Contains(err.Error(), "MY_KEY") {
		t.Errorf("error should name MY_KEY, got: %v", err)
	}
}

func TestNewGateway_Credential(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid", testKey, nil},
		{"quoted and padded", ` "` + testKey + `" `, nil},
		{"missing", "", credential.ErrMissing},
		{"whitespace only", "   ", credential.ErrMissing},
		{"bad prefix", "pk-abcdefghijklmnopqrstuvwxyz", credential.ErrBadPrefix},
		{"too short", "sk-short", credential.ErrTooShort},
		{"too long", "sk-" + strings.Repeat("x", credential.MaxLength), credential.ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, err := NewGateway(GatewayConfig{APIKey: tt.key}, testLogger())

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if gw.KeyPreview() != "sk-proj-abcdefg...0123456789" {
					t.Errorf("KeyPreview() = %q", gw.KeyPreview())
				}
				if gw.KeyLength() != len(testKey) {
					t.Errorf("KeyLength() = %d, want %d", gw.KeyLength(), len(testKey))
				}
				return
			}

			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error should match ErrConfiguration, got: %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error should match %v, got: %v", tt.wantErr, err)
			}
			if CategoryOf(err) != CategoryConfiguration {
				t.Errorf("CategoryOf() = %v", CategoryOf(err))
			}
			if !HasMarker(err.Error()) {
				t.Errorf("error should carry a marker: %q", err.Error())
			}
			if len(tt.key) > 20 && strings.Contains(err.Error(), strings.TrimSpace(tt.key)) {
				t.Errorf("error leaks the key: %q", err.Error())
			}
		})
	}
}

func TestNewGateway_NilLogger(t *testing.T) {
	if _, err := NewGateway(GatewayConfig{APIKey: testKey}, nil); err == nil {
		t.Error("NewGateway() should reject nil logger")
	}
}

func TestModels(t *testing.T) {
	got := Models()
	want := []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Models() = %v, want %v", got, want)
	}
	if got[0] != DefaultModel {
		t.Errorf("first model = %q, want default %q", got[0], DefaultModel)
	}

	got[0] = "mutated"
	if Models()[0] != DefaultModel {
		t.Error("Models() should return a copy")
	}

	if !IsModel("gpt-4o") {
		t.Error("IsModel(gpt-4o) = false")
	}
	if IsModel("gpt-5") {
		t.Error("IsModel(gpt-5) = true")
	}
}

func TestBuildRequest(t *testing.T) {
	valid := []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "2+2?"},
	}

	tests := []struct {
		name     string
		messages []Message
		opts     *ChatOptions
		wantErr  bool
	}{
		{"valid with defaults", valid, nil, false},
		{"valid with options", valid, &ChatOptions{Model: "gpt-4o", Temperature: 1}, false},
		{"system only", valid[:1], nil, false},
		{"empty", nil, nil, true},
		{"no leading system", valid[1:], nil, true},
		{"second system", append([]Message{valid[0]}, Message{Role: RoleSystem, Content: "again"}), nil, true},
		{"unknown role", []Message{valid[0], {Role: "tool", Content: "x"}}, nil, true},
		{"unsupported model", valid, &ChatOptions{Model: "llama3.2", Temperature: 0.5}, true},
		{"negative temperature", valid, &ChatOptions{Temperature: -0.1}, true},
		{"temperature above one", valid, &ChatOptions{Temperature: 1.1}, true},
		{"nan temperature", valid, &ChatOptions{Temperature: float32(math.NaN())}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildRequest(tt.messages, tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("error = %v, want %v", err, ErrInvalidRequest)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(req.Messages) != len(tt.messages) {
				t.Errorf("messages = %d, want %d", len(req.Messages), len(tt.messages))
			}
			for i, m := range req.Messages {
				if m.Role != string(tt.messages[i].Role) || m.Content != tt.messages[i].Content {
					t.Errorf("message[%d] = %+v, want %+v", i, m, tt.messages[i])
				}
			}
		})
	}
}

func TestBuildRequest_Defaults(t *testing.T) {
	req, err := buildRequest([]Message{{Role: RoleSystem, Content: "s"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", req.Model, DefaultModel)
	}
	if req.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", req.Temperature, DefaultTemperature)
	}
}

func TestBuildRequest_ZeroTemperatureIsSent(t *testing.T) {
	req, err := buildRequest([]Message{{Role: RoleSystem, Content: "s"}}, &ChatOptions{Temperature: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Temperature <= 0 || req.Temperature > 1e-30 {
		t.Errorf("Temperature = %v, want smallest positive float32", req.Temperature)
	}
}

func TestCategory_String(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryUnknown, "unknown"},
		{CategoryConfiguration, "configuration"},
		{CategoryRateLimited, "rate_limited"},
		{CategoryConnectionFailed, "connection_failed"},
		{CategoryTimedOut, "timed_out"},
		{CategoryAuthenticationFailed, "authentication_failed"},
		{CategoryUpstreamAPI, "upstream_api"},
		{Category(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestError_UnwrapMatchesOneSentinel(t *testing.T) {
	sentinels := []error{
		ErrConfiguration, ErrRateLimited, ErrConnectionFailed, ErrTimedOut,
		ErrAuthenticationFailed, ErrUpstreamAPI, ErrUnknownFailure,
	}
	cause := errors.New("cause")

	for c := CategoryUnknown; c <= CategoryUpstreamAPI; c++ {
		e := &Error{Category: c, msg: "x", err: cause}
		matches := 0
		for _, s := range sentinels {
			if errors.Is(e, s) {
				matches++
			}
		}
		if matches != 1 {
			t.Errorf("category %v matches %d sentinels, want 1", c, matches)
		}
		if !errors.Is(e, cause) {
			t.Errorf("category %v does not unwrap to its cause", c)
		}
	}
}

func TestCategoryOf_PlainError(t *testing.T) {
	if got := CategoryOf(errors.New("plain")); got != CategoryUnknown {
		t.Errorf("CategoryOf() = %v, want unknown", got)
	}
}
