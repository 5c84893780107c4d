package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/output"
	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat in the terminal",
	Long: `Start an interactive chat. Replies stream in with a cursor while they
are generated. Arrow keys recall earlier lines. Ctrl-C stops a reply that
is still streaming; at the prompt it leaves, as does Ctrl-D. Lines starting
with a slash are commands:

  /model [name]        show or change the model
  /temperature [0-1]   show or change the temperature
  /system [text]       show or change the system prompt
  /reset               clear the conversation and restore the system prompt
  /help                list commands
  /quit                leave

Examples:
  streamchat chat
  streamchat chat --model gpt-4o --temperature 0.2
  streamchat chat --no-color`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "model for this session (default from config or OPENAI_MODEL)")
	chatCmd.Flags().Float32P("temperature", "t", -1, "sampling temperature, 0.0 to 1.0")
	chatCmd.Flags().String("system", "", "system prompt for this session")
	chatCmd.Flags().String("color", "auto", "color output (auto, always, never)")
	chatCmd.Flags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	settings, err := settingsFromFlags(cmd, a.defaults())
	if err != nil {
		return err
	}
	conv, err := session.NewConversation(uuid.NewString(), settings, a.logger)
	if err != nil {
		return err
	}

	colorStr, _ := cmd.Flags().GetString("color")
	noColor, _ := cmd.Flags().GetBool("no-color")
	mode := output.ParseColorMode(colorStr)
	if noColor {
		mode = output.ColorNever
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	repl := &chatREPL{
		conv:      conv,
		open:      a.openGateway,
		renderer:  output.NewChatRenderer(cmd.OutOrStdout(), mode, false),
		out:       cmd.OutOrStdout(),
		interrupt: true,
	}
	return repl.run(ctx, line)
}

// settingsFromFlags applies the per-session flags on top of defaults.
func settingsFromFlags(cmd *cobra.Command, s session.Settings) (session.Settings, error) {
	if cmd.Flags().Changed("model") {
		s.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("temperature") {
		s.Temperature, _ = cmd.Flags().GetFloat32("temperature")
	}
	if cmd.Flags().Changed("system") {
		s.SystemPrompt, _ = cmd.Flags().GetString("system")
	}
	return s, s.Validate()
}

// lineReader reads one line of user input. *liner.State implements it;
// Ctrl-C at the prompt returns liner.ErrPromptAborted and Ctrl-D io.EOF.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type chatREPL struct {
	conv     *session.Conversation
	open     session.GatewayFunc
	renderer *output.ChatRenderer
	out      io.Writer

	// interrupt lets SIGINT cancel a running turn without leaving the REPL.
	interrupt bool
}

var errQuit = errors.New("quit")

func (r *chatREPL) run(ctx context.Context, in lineReader) error {
	s := r.conv.Settings()
	r.renderer.Info("model %s, temperature %.1f. Type /help for commands.", s.Model, s.Temperature)

	for {
		line, err := in.Prompt("you: ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return err
		}
		if strings.TrimSpace(line) != "" {
			in.AppendHistory(line)
		}

		err = r.handle(ctx, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one input line. Only errors that should end the session are
// returned; gateway failures have already been rendered.
func (r *chatREPL) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "/") {
		return r.command(line)
	}

	if r.interrupt {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	err := r.conv.Send(ctx, line, r.open, r.renderer)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrRenderFailed):
		return err
	default:
		return nil
	}
}

func (r *chatREPL) command(line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	s := r.conv.Settings()

	switch name {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		r.renderer.Info("/model [name]  /temperature [0-1]  /system [text]  /reset  /quit")
		r.renderer.Info("models: %s", strings.Join(llm.Models(), ", "))
	case "/reset":
		r.conv.ResetConversation()
		r.renderer.Info("conversation reset")
	case "/model":
		if arg == "" {
			r.renderer.Info("model: %s", s.Model)
			return nil
		}
		s.Model = arg
		r.update(s, "model: %s", s.Model)
	case "/temperature":
		if arg == "" {
			r.renderer.Info("temperature: %.1f", s.Temperature)
			return nil
		}
		t, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			r.renderer.Warn("not a number: %s", arg)
			return nil
		}
		s.Temperature = float32(t)
		r.update(s, "temperature: %.1f", s.Temperature)
	case "/system":
		if arg == "" {
			r.renderer.Info("system: %s", s.SystemPrompt)
			return nil
		}
		s.SystemPrompt = arg
		r.update(s, "system prompt updated")
	default:
		r.renderer.Warn("unknown command %s, try /help", name)
	}
	return nil
}

func (r *chatREPL) update(s session.Settings, format string, args ...any) {
	if err := r.conv.UpdateSettings(s); err != nil {
		r.renderer.Warn("%v", err)
		return
	}
	r.renderer.Info(format, args...)
}
