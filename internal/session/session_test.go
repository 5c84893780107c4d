package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/prompt"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-proj-abcdefghijklmnopqrstuvwxyz0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider streams canned fragments and records what it was asked.
type fakeProvider struct {
	fragments []string
	err       error

	calls    int
	messages []llm.Message
	opts     *llm.ChatOptions

	// before runs ahead of each fragment, e.g. to reset mid-stream.
	before func(i int)
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	return &llm.Response{Content: strings.Join(f.fragments, "")}, f.err
}

func (f *fakeProvider) ChatStream(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.calls++
		f.messages = messages
		f.opts = opts
		for i, frag := range f.fragments {
			if f.before != nil {
				f.before(i)
			}
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func (f *fakeProvider) Heartbeat(ctx context.Context) error { return nil }

func (f *fakeProvider) ModelAvailable(ctx context.Context, model string) (bool, error) {
	return true, nil
}

func opener(p llm.Provider) GatewayFunc {
	return func() (llm.Provider, error) { return p, nil }
}

// recorder keeps every rendered event.
type recorder struct {
	events []Event
	failAt int // 1-based event index to fail on, 0 = never
}

func (r *recorder) Render(e Event) error {
	r.events = append(r.events, e)
	if r.failAt > 0 && len(r.events) == r.failAt {
		return errors.New("client went away")
	}
	return nil
}

func (r *recorder) texts(kind EventKind) []string {
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Text)
		}
	}
	return out
}

func newTestConversation(t *testing.T) *Conversation {
	t.Helper()
	c, err := NewConversation("test", DefaultSettings(), testLogger())
	require.NoError(t, err)
	return c
}

func TestSubmitUserTurn_RendersBeforeGateway(t *testing.T) {
	c := newTestConversation(t)
	rec := &recorder{}

	require.NoError(t, c.SubmitUserTurn("hello", rec))

	require.Equal(t, []Turn{{Role: llm.RoleUser, Content: "hello"}}, c.Transcript())
	require.Equal(t, []Event{{Kind: EventTurn, Role: llm.RoleUser, Text: "hello"}}, rec.events)
}

func TestSubmitUserTurn_RejectsBlank(t *testing.T) {
	c := newTestConversation(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		require.ErrorIs(t, c.SubmitUserTurn(text, nil), ErrEmptyMessage)
	}
	require.Empty(t, c.Transcript())
}

func TestRunAssistantTurn_TwoPlusTwo(t *testing.T) {
	c := newTestConversation(t)
	rec := &recorder{}
	fake := &fakeProvider{fragments: []string{"4"}}

	require.NoError(t, c.SubmitUserTurn("2+2?", rec))
	require.NoError(t, c.RunAssistantTurn(context.Background(), opener(fake), rec))

	require.Equal(t, []Turn{
		{Role: llm.RoleUser, Content: "2+2?"},
		{Role: llm.RoleAssistant, Content: "4"},
	}, c.Transcript())
	require.Equal(t, []string{"4▌"}, rec.texts(EventPartial))
	require.Equal(t, []string{"4"}, rec.texts(EventFinal))

	last := rec.events[len(rec.events)-1]
	require.Equal(t, EventFinal, last.Kind)
}

func TestRunAssistantTurn_AccumulatesFragments(t *testing.T) {
	c := newTestConversation(t)
	rec := &recorder{}
	fake := &fakeProvider{fragments: []string{"Hel", "lo", "!"}}

	require.NoError(t, c.Send(context.Background(), "hi", opener(fake), rec))

	require.Equal(t, []string{"Hel▌", "Hello▌", "Hello!▌"}, rec.texts(EventPartial))
	require.Equal(t, []string{"Hello!"}, rec.texts(EventFinal))
	require.Equal(t, "Hello!", c.Transcript()[1].Content)
}

func TestRunAssistantTurn_SendsSystemThenTranscript(t *testing.T) {
	c := newTestConversation(t)
	require.NoError(t, c.UpdateSettings(Settings{Model: "gpt-4o", Temperature: 0.2, SystemPrompt: "be terse"}))

	fake := &fakeProvider{fragments: []string{"a"}}
	require.NoError(t, c.Send(context.Background(), "one", opener(fake), nil))
	require.NoError(t, c.Send(context.Background(), "two", opener(fake), nil))

	require.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "one"},
		{Role: llm.RoleAssistant, Content: "a"},
		{Role: llm.RoleUser, Content: "two"},
	}, fake.messages)
	require.Equal(t, "gpt-4o", fake.opts.Model)
	require.InDelta(t, 0.2, fake.opts.Temperature, 1e-6)
	require.Equal(t, 2, fake.calls)
}

func TestRunAssistantTurn_ErrorLeavesTranscript(t *testing.T) {
	c := newTestConversation(t)
	rec := &recorder{}
	fake := &fakeProvider{fragments: []string{"par", "tial"}, err: errors.New("connection reset by peer")}

	require.NoError(t, c.SubmitUserTurn("hi", rec))
	err := c.RunAssistantTurn(context.Background(), opener(fake), rec)
	require.Error(t, err)

	require.Len(t, c.Transcript(), 1)
	errs := rec.texts(EventError)
	require.Len(t, errs, 1)
	require.True(t, strings.HasPrefix(errs[0], llm.MarkerConnection), errs[0])
	require.Empty(t, rec.texts(EventFinal))
}

// Authentication failures come from a real gateway against a mock upstream.
func TestRunAssistantTurn_AuthenticationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Incorrect API key provided: " + testKey + ".",
				"type":    "invalid_request_error",
				"param":   nil,
				"code":    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	open := func() (llm.Provider, error) {
		return llm.NewGateway(llm.GatewayConfig{APIKey: testKey, BaseURL: server.URL + "/v1"}, testLogger())
	}

	c := newTestConversation(t)
	rec := &recorder{}
	require.NoError(t, c.SubmitUserTurn("hello", rec))
	before := len(c.Transcript())

	err := c.RunAssistantTurn(context.Background(), open, rec)
	require.ErrorIs(t, err, llm.ErrAuthenticationFailed)
	require.Len(t, c.Transcript(), before)

	errs := rec.texts(EventError)
	require.Len(t, errs, 1)
	for _, step := range []string{
		"1. Check OPENAI_API_KEY in your .env file",
		"2. Make sure the whole API key was copied",
		"3. Make sure there are no spaces or quotes",
		"4. Generate a new key at https://platform.openai.com/account/api-keys",
		"5. Restart the app",
	} {
		require.Contains(t, errs[0], step)
	}
	require.NotContains(t, errs[0], testKey)
}

func TestRunAssistantTurn_BadCredentialMakesNoCall(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	for _, key := range []string{"", "pk-abcdefghijklmnopqrstuvwxyz", "sk-short", "sk-" + strings.Repeat("z", 400)} {
		open := func() (llm.Provider, error) {
			return llm.NewGateway(llm.GatewayConfig{APIKey: key, BaseURL: server.URL + "/v1"}, testLogger())
		}

		c := newTestConversation(t)
		rec := &recorder{}
		err := c.Send(context.Background(), "hello", open, rec)

		require.ErrorIs(t, err, llm.ErrConfiguration)
		require.Len(t, c.Transcript(), 1, "user turn stays, no assistant turn")
		require.Len(t, rec.texts(EventError), 1)
		require.False(t, c.Busy(), "conversation stays usable")
	}
	require.Zero(t, requests.Load())
}

func TestRunAssistantTurn_RendererFailureAbandons(t *testing.T) {
	c := newTestConversation(t)
	// event 1 = user turn, event 2 = first partial
	rec := &recorder{failAt: 2}
	fake := &fakeProvider{fragments: []string{"a", "b", "c"}}

	err := c.Send(context.Background(), "hi", opener(fake), rec)
	require.ErrorIs(t, err, ErrRenderFailed)
	require.Len(t, rec.texts(EventPartial), 1)
	require.Len(t, c.Transcript(), 1)
}

func TestResetConversation(t *testing.T) {
	c := newTestConversation(t)
	fake := &fakeProvider{fragments: []string{"ok"}}
	require.NoError(t, c.UpdateSettings(Settings{Model: "gpt-4-turbo", Temperature: 0.1, SystemPrompt: "pirate voice"}))
	require.NoError(t, c.Send(context.Background(), "hi", opener(fake), nil))

	c.ResetConversation()

	require.Empty(t, c.Transcript())
	s := c.Settings()
	require.Equal(t, prompt.DefaultSystemPrompt, s.SystemPrompt)
	require.Equal(t, "gpt-4-turbo", s.Model)
	require.InDelta(t, 0.1, s.Temperature, 1e-6)

	// Reset of an already empty conversation is fine.
	c.ResetConversation()
	require.Empty(t, c.Transcript())
}

func TestResetConversation_DuringTurnDropsReply(t *testing.T) {
	c := newTestConversation(t)
	fake := &fakeProvider{fragments: []string{"a", "b"}}
	fake.before = func(i int) {
		if i == 1 {
			c.ResetConversation()
		}
	}

	require.NoError(t, c.Send(context.Background(), "hi", opener(fake), nil))
	require.Empty(t, c.Transcript())
}

func TestUpdateSettings_Validation(t *testing.T) {
	c := newTestConversation(t)
	before := c.Settings()

	tests := []Settings{
		{Model: "gpt-5", Temperature: 0.5},
		{Model: "gpt-4o", Temperature: -0.1},
		{Model: "gpt-4o", Temperature: 1.5},
	}
	for _, s := range tests {
		require.ErrorIs(t, c.UpdateSettings(s), ErrInvalidSettings)
		require.Equal(t, before, c.Settings())
	}

	require.NoError(t, c.UpdateSettings(Settings{Model: "gpt-3.5-turbo", Temperature: 0, SystemPrompt: ""}))
	require.Equal(t, "gpt-3.5-turbo", c.Settings().Model)
}

func TestTurnInProgress(t *testing.T) {
	c := newTestConversation(t)
	inner := make(chan error, 3)

	fake := &fakeProvider{fragments: []string{"a"}}
	fake.before = func(int) {
		inner <- c.SubmitUserTurn("again", nil)
		inner <- c.RunAssistantTurn(context.Background(), opener(fake), nil)
		inner <- c.Send(context.Background(), "again", opener(fake), nil)
	}

	require.NoError(t, c.Send(context.Background(), "hi", opener(fake), nil))
	for range 3 {
		require.ErrorIs(t, <-inner, ErrTurnInProgress)
	}
	require.Len(t, c.Transcript(), 2)
	require.False(t, c.Busy())
}

func TestTranscript_RejectsSystem(t *testing.T) {
	var tr Transcript
	require.Error(t, tr.Append(Turn{Role: llm.RoleSystem, Content: "x"}))
	require.NoError(t, tr.Append(Turn{Role: llm.RoleUser, Content: "x"}))

	turns := tr.Turns()
	turns[0].Content = "mutated"
	require.Equal(t, "x", tr.Turns()[0].Content)
}

func TestNewConversation(t *testing.T) {
	_, err := NewConversation("x", DefaultSettings(), nil)
	require.Error(t, err)

	_, err = NewConversation("x", Settings{Model: "nope"}, testLogger())
	require.ErrorIs(t, err, ErrInvalidSettings)

	c, err := NewConversation("x", Settings{Model: "gpt-4o", Temperature: 1}, testLogger())
	require.NoError(t, err)
	require.Equal(t, prompt.DefaultSystemPrompt, c.DefaultSystemPrompt())
}
